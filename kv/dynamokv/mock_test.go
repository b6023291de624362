package dynamokv

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDDBClient is an in-memory DynamoDB mock supporting the key schema,
// queries and condition expressions the database issues.
type mockDDBClient struct {
	mu         sync.Mutex
	partitions map[string]map[string][]byte // pk -> sk -> v
	pageSize   int

	queries      int
	transactions int
	lastItems    int
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{partitions: make(map[string]map[string][]byte)}
}

func keyAttrs(key map[string]types.AttributeValue) (string, string) {
	pk := key[attrPartition].(*types.AttributeValueMemberS).Value
	sk := key[attrKey].(*types.AttributeValueMemberB).Value
	return pk, string(sk)
}

func (m *mockDDBClient) item(pk, sk string, v []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPartition: &types.AttributeValueMemberS{Value: pk},
		attrKey:       &types.AttributeValueMemberB{Value: []byte(sk)},
		attrValue:     &types.AttributeValueMemberB{Value: bytes.Clone(v)},
	}
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk, sk := keyAttrs(params.Key)
	if v, ok := m.partitions[pk][sk]; ok {
		return &dynamodb.GetItemOutput{Item: m.item(pk, sk, v)}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++

	if aws.ToString(params.KeyConditionExpression) != "pk = :pk AND sk BETWEEN :b AND :e" {
		return nil, errors.New("mock: unsupported key condition")
	}
	pk := params.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	begin := string(params.ExpressionAttributeValues[":b"].(*types.AttributeValueMemberB).Value)
	end := string(params.ExpressionAttributeValues[":e"].(*types.AttributeValueMemberB).Value)
	if begin > end {
		return nil, errors.New("mock: invalid BETWEEN bounds")
	}

	var keys []string
	for sk := range m.partitions[pk] {
		if sk >= begin && sk <= end {
			keys = append(keys, sk)
		}
	}
	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	sort.Slice(keys, func(i, j int) bool {
		if forward {
			return keys[i] < keys[j]
		}
		return keys[i] > keys[j]
	})

	if params.ExclusiveStartKey != nil {
		_, start := keyAttrs(params.ExclusiveStartKey)
		i := sort.Search(len(keys), func(i int) bool {
			if forward {
				return keys[i] > start
			}
			return keys[i] < start
		})
		keys = keys[i:]
	}

	limit := m.pageSize
	if params.Limit != nil && (limit == 0 || int(*params.Limit) < limit) {
		limit = int(*params.Limit)
	}
	out := &dynamodb.QueryOutput{}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		last := keys[len(keys)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			attrPartition: &types.AttributeValueMemberS{Value: pk},
			attrKey:       &types.AttributeValueMemberB{Value: []byte(last)},
		}
	}
	for _, sk := range keys {
		out.Items = append(out.Items, m.item(pk, sk, m.partitions[pk][sk]))
	}
	return out, nil
}

func (m *mockDDBClient) check(cond *string, values map[string]types.AttributeValue, key map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	pk, sk := keyAttrs(key)
	v, exists := m.partitions[pk][sk]
	switch *cond {
	case "attribute_not_exists(sk)":
		return !exists
	case "v = :v":
		want := values[":v"].(*types.AttributeValueMemberB).Value
		return exists && bytes.Equal(v, want)
	default:
		panic("mock: unsupported condition " + *cond)
	}
}

func (m *mockDDBClient) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions++
	m.lastItems = len(params.TransactItems)

	if len(params.TransactItems) > MaxTransactionItems {
		return nil, errors.New("mock: too many items")
	}

	failed := false
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	for i, it := range params.TransactItems {
		ok := true
		switch {
		case it.Put != nil:
			ok = m.check(it.Put.ConditionExpression, it.Put.ExpressionAttributeValues, it.Put.Item)
		case it.Delete != nil:
			ok = m.check(it.Delete.ConditionExpression, it.Delete.ExpressionAttributeValues, it.Delete.Key)
		case it.ConditionCheck != nil:
			ok = m.check(it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeValues, it.ConditionCheck.Key)
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			failed = true
			reasons[i].Code = aws.String("ConditionalCheckFailed")
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			pk, sk := keyAttrs(it.Put.Item)
			if m.partitions[pk] == nil {
				m.partitions[pk] = make(map[string][]byte)
			}
			m.partitions[pk][sk] = bytes.Clone(it.Put.Item[attrValue].(*types.AttributeValueMemberB).Value)
		case it.Delete != nil:
			pk, sk := keyAttrs(it.Delete.Key)
			delete(m.partitions[pk], sk)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *mockDDBClient) size(pk string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.partitions[pk])
}
