// Package repository persists conversation turns in a DynamoDB single-table
// layout, as a durable alternative to the in-memory session store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"recordchat-agent/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by TurnStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// TurnStore wraps a DynamoDB table holding per-user turn windows. Reads are
// bounded to the window size, so retention behaves like the in-memory store
// even though older items only age out through their TTL.
type TurnStore struct {
	api       dynamodbAPI
	tableName string
	maxTurns  int
	now       func() time.Time
}

// New creates a TurnStore over the given table. maxTurns bounds History
// reads; <= 0 selects 20.
func New(api dynamodbAPI, tableName string, maxTurns int) (*TurnStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &TurnStore{api: api, tableName: tableName, maxTurns: maxTurns, now: time.Now}, nil
}

// userPK returns the DynamoDB partition key for one user's session.
func userPK(userID string) string {
	return "USER#" + userID
}

// turnSK returns the sort key for a turn using its UTC timestamp.
func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

func (s *TurnStore) ttlValue() int64 {
	return s.now().Add(ttlDuration).Unix()
}

// Append writes the turn item and bumps the session metadata counters in one
// transaction.
func (s *TurnStore) Append(ctx context.Context, turn domain.Turn) error {
	userID := strings.TrimSpace(turn.UserID)
	if userID == "" {
		return errors.New("repository: Append: turn user id is required")
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	item, err := s.turnItem(turn)
	if err != nil {
		return fmt.Errorf("repository: Append encode: %w", err)
	}

	startedAt := turn.Timestamp.UTC().Format(time.RFC3339Nano)
	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String(
						"ADD turns :one SET startedAt = if_not_exists(startedAt, :started), lastActivity = :started, #ttl = :ttl"),
					ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one":     &types.AttributeValueMemberN{Value: "1"},
						":started": &types.AttributeValueMemberS{Value: startedAt},
						":ttl":     &types.AttributeValueMemberN{Value: strconv.FormatInt(s.ttlValue(), 10)},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// History returns the newest turns for a user, capped at the window size and
// ordered chronologically.
func (s *TurnStore) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so the limit keeps the most recent window.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(s.maxTurns)),
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: History decode: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Stats returns the persisted session counters. Unknown users get zero-value
// stats, not an error.
func (s *TurnStore) Stats(ctx context.Context, userID string) (domain.SessionStats, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("repository: Stats get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionStats{}, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("repository: Stats decode turns: %w", err)
	}
	startedRaw, err := strAttr(out.Item, "startedAt")
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("repository: Stats decode startedAt: %w", err)
	}
	startedAt, err := time.Parse(time.RFC3339Nano, startedRaw)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("repository: Stats parse startedAt: %w", err)
	}

	return domain.SessionStats{
		MessageCount: turns,
		Duration:     s.now().Sub(startedAt),
		StartedAt:    startedAt,
	}, nil
}

// turnItem converts a Turn into a DynamoDB attribute map. The intent and
// function result are stored as JSON documents.
func (s *TurnStore) turnItem(turn domain.Turn) (map[string]types.AttributeValue, error) {
	intentJSON, err := json.Marshal(turn.Intent)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}

	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: userPK(turn.UserID)},
		"SK":         &types.AttributeValueMemberS{Value: turnSK(turn.Timestamp)},
		"turnId":     &types.AttributeValueMemberS{Value: turn.ID},
		"utterance":  &types.AttributeValueMemberS{Value: turn.Utterance},
		"intent":     &types.AttributeValueMemberS{Value: string(intentJSON)},
		"reply":      &types.AttributeValueMemberS{Value: turn.Reply},
		"durationMs": &types.AttributeValueMemberN{Value: strconv.FormatInt(turn.DurationMs, 10)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(s.ttlValue(), 10)},
	}
	if turn.FunctionCalled != "" {
		item["functionCalled"] = &types.AttributeValueMemberS{Value: turn.FunctionCalled}
	}
	if turn.ErrorDetail != "" {
		item["errorDetail"] = &types.AttributeValueMemberS{Value: turn.ErrorDetail}
	}
	if turn.FunctionResult != nil {
		resultJSON, err := json.Marshal(turn.FunctionResult)
		if err != nil {
			return nil, fmt.Errorf("marshal function result: %w", err)
		}
		item["functionResult"] = &types.AttributeValueMemberS{Value: string(resultJSON)}
	}
	return item, nil
}

// itemToTurn converts a DynamoDB attribute map back into a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	utterance, err := strAttr(item, "utterance")
	if err != nil {
		return domain.Turn{}, err
	}
	reply, _ := strAttr(item, "reply") // allow empty

	turn := domain.Turn{
		UserID:    strings.TrimPrefix(pk, "USER#"),
		Utterance: utterance,
		Reply:     reply,
	}
	if id, err := strAttr(item, "turnId"); err == nil {
		turn.ID = id
	}
	if ts, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(sk, skPrefixTurn)); err == nil {
		turn.Timestamp = ts
	}
	if raw, err := strAttr(item, "intent"); err == nil {
		_ = json.Unmarshal([]byte(raw), &turn.Intent)
	}
	if fn, err := strAttr(item, "functionCalled"); err == nil {
		turn.FunctionCalled = fn
	}
	if detail, err := strAttr(item, "errorDetail"); err == nil {
		turn.ErrorDetail = detail
	}
	if raw, err := strAttr(item, "functionResult"); err == nil {
		var result domain.CapabilityResult
		if json.Unmarshal([]byte(raw), &result) == nil {
			turn.FunctionResult = &result
		}
	}
	if ms, err := intAttr(item, "durationMs"); err == nil {
		turn.DurationMs = int64(ms)
	}
	return turn, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
