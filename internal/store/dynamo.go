package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/freeeve/explorer/internal/explorer"
)

// Dynamo implements PositionStore and NotificationStore on DynamoDB.
// All explorer records live in one table keyed by (normalizedFen, id);
// notifications live in a second table keyed by (username, id).
type Dynamo struct {
	client             *dynamodb.Client
	table              string
	notificationsTable string
}

// NewDynamo returns a store backed by the given tables.
func NewDynamo(client *dynamodb.Client, table, notificationsTable string) *Dynamo {
	return &Dynamo{client: client, table: table, notificationsTable: notificationsTable}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func key(fen, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"normalizedFen": &types.AttributeValueMemberS{Value: fen},
		"id":            &types.AttributeValueMemberS{Value: id},
	}
}

func (d *Dynamo) GetPosition(ctx context.Context, fen string) (*explorer.Position, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       key(fen, explorer.PositionID),
	})
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var pos explorer.Position
	if err := attributevalue.UnmarshalMap(out.Item, &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return &pos, nil
}

func (d *Dynamo) CreatePosition(ctx context.Context, pos *explorer.Position) error {
	item, err := attributevalue.MarshalMap(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(normalizedFen)"),
	})
	if isConditionFailed(err) {
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

func (d *Dynamo) InitCohort(ctx context.Context, pos *explorer.Position, cohort string) error {
	zero, err := attributevalue.Marshal(explorer.ResultCounts{})
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}

	expr := "SET #r.#c = :zero"
	names := map[string]string{
		"#r": "results",
		"#c": cohort,
		"#m": "moves",
	}
	n := 0
	for san := range pos.Moves {
		n++
		p := "#s" + strconv.Itoa(n)
		names[p] = san
		expr += fmt.Sprintf(", #m.%s.#r.#c = :zero", p)
	}
	if len(pos.Moves) == 0 {
		delete(names, "#m")
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       key(pos.Fen, explorer.PositionID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_not_exists(#r.#c)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: map[string]types.AttributeValue{":zero": zero},
	})
	if isConditionFailed(err) {
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("init cohort: %w", err)
	}
	return nil
}

func (d *Dynamo) ApplyUpdate(ctx context.Context, fen, cohort string, u explorer.PositionUpdate) error {
	names := map[string]string{
		"#r": "results",
		"#c": cohort,
	}
	values := map[string]types.AttributeValue{
		":inc": &types.AttributeValueMemberN{Value: "1"},
		":dec": &types.AttributeValueMemberN{Value: "-1"},
	}

	resultName := func(r explorer.Result) string {
		p := "#" + string(r)[:1]
		names[p] = string(r)
		return p
	}

	var adds []string
	if u.OldResult != u.NewResult {
		if u.OldResult != explorer.ResultNone {
			adds = append(adds, fmt.Sprintf("#r.#c.%s :dec", resultName(u.OldResult)))
		}
		if u.NewResult != explorer.ResultNone {
			adds = append(adds, fmt.Sprintf("#r.#c.%s :inc", resultName(u.NewResult)))
		}
	}
	for i, m := range u.Moves {
		p := "#s" + strconv.Itoa(i)
		names[p] = m.SAN
		names["#m"] = "moves"
		if m.OldResult != explorer.ResultNone {
			adds = append(adds, fmt.Sprintf("#m.%s.#r.#c.%s :dec", p, resultName(m.OldResult)))
		}
		if m.NewResult != explorer.ResultNone {
			adds = append(adds, fmt.Sprintf("#m.%s.#r.#c.%s :inc", p, resultName(m.NewResult)))
		}
	}
	if len(adds) == 0 {
		return nil
	}

	// DynamoDB rejects unused expression values.
	usedDec := false
	for _, a := range adds {
		if a[len(a)-4:] == ":dec" {
			usedDec = true
		}
	}
	if !usedDec {
		delete(values, ":dec")
	}
	usedInc := false
	for _, a := range adds {
		if a[len(a)-4:] == ":inc" {
			usedInc = true
		}
	}
	if !usedInc {
		delete(values, ":inc")
	}

	expr := "ADD " + adds[0]
	for _, a := range adds[1:] {
		expr += ", " + a
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       key(fen, explorer.PositionID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(#r.#c)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	return nil
}

func (d *Dynamo) PutGame(ctx context.Context, g *explorer.Game) error {
	item, err := attributevalue.MarshalMap(g)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put game: %w", err)
	}
	return nil
}

func (d *Dynamo) DeleteGame(ctx context.Context, fen, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       key(fen, id),
	})
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

func (d *Dynamo) ListGames(ctx context.Context, fen string) ([]explorer.Game, error) {
	var games []explorer.Game
	err := d.queryPrefix(ctx, fen, "GAME#", func(items []map[string]types.AttributeValue) error {
		var page []explorer.Game
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return err
		}
		games = append(games, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (d *Dynamo) PutFollower(ctx context.Context, f *explorer.Follower) error {
	item, err := attributevalue.MarshalMap(f)
	if err != nil {
		return fmt.Errorf("marshal follower: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put follower: %w", err)
	}
	return nil
}

func (d *Dynamo) DeleteFollower(ctx context.Context, fen, username string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       key(fen, FollowerID(username)),
	})
	if err != nil {
		return fmt.Errorf("delete follower: %w", err)
	}
	return nil
}

func (d *Dynamo) ListFollowers(ctx context.Context, fen string) ([]explorer.Follower, error) {
	var followers []explorer.Follower
	err := d.queryPrefix(ctx, fen, "FOLLOWER#", func(items []map[string]types.AttributeValue) error {
		var page []explorer.Follower
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return err
		}
		followers = append(followers, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return followers, nil
}

// queryPrefix pages through every record under fen whose range key
// starts with prefix.
func (d *Dynamo) queryPrefix(ctx context.Context, fen, prefix string, page func([]map[string]types.AttributeValue) error) error {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("normalizedFen = :fen AND begins_with(id, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fen":    &types.AttributeValueMemberS{Value: fen},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}
	for {
		out, err := d.client.Query(ctx, input)
		if err != nil {
			return err
		}
		if err := page(out.Items); err != nil {
			return err
		}
		if out.LastEvaluatedKey == nil {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// NotifyGame upserts the follower's notification record, bumping its
// counter and appending the triggering game. "count" and "type" are
// DynamoDB reserved words.
func (d *Dynamo) NotifyGame(ctx context.Context, username, fen string, game explorer.GameEmbed) error {
	g, err := attributevalue.Marshal(game)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.notificationsTable),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
			"id":       &types.AttributeValueMemberS{Value: fen},
		},
		UpdateExpression: aws.String(
			"SET #ty = :type, updatedAt = :now, games = list_append(if_not_exists(games, :empty), :game) ADD #ct :one"),
		ExpressionAttributeNames: map[string]string{
			"#ty": "type",
			"#ct": "count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":type":  &types.AttributeValueMemberS{Value: "EXPLORER_GAME"},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":empty": &types.AttributeValueMemberL{Value: nil},
			":game":  &types.AttributeValueMemberL{Value: []types.AttributeValue{g}},
			":one":   &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("notify game: %w", err)
	}
	return nil
}
