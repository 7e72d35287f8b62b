package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mehanizm/airtable"

	"messenger-relay/internal/conversation"
)

// Airtable column names. These match the base the original integration was
// built against; the base itself is external configuration.
const (
	airtableUserField    = "Facebook User ID"
	airtableHistoryField = "Message History"
	airtableSessionField = "Thread ID"
)

// Airtable is a Conversations implementation backed by an Airtable table.
// One row per user; the record id doubles as the store key.
type Airtable struct {
	table *airtable.Table
}

// NewAirtable builds the client once; the airtable library carries no
// per-call context, so the overall timeout is enforced on its HTTP client.
func NewAirtable(apiKey, baseID, tableName string, timeout time.Duration) *Airtable {
	client := airtable.NewClient(apiKey)
	client.SetCustomClient(&http.Client{Timeout: timeout})
	return &Airtable{table: client.GetTable(baseID, tableName)}
}

func (a *Airtable) Load(_ context.Context, userID string) (*conversation.Record, error) {
	res, err := a.table.GetRecords().
		WithFilterFormula(fmt.Sprintf("{%s} = %q", airtableUserField, userID)).
		MaxRecords(1).
		Do()
	if err != nil {
		return nil, fmt.Errorf("airtable select: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	row := res.Records[0]
	rec := &conversation.Record{ID: row.ID, UserID: userID}
	if v, ok := row.Fields[airtableSessionField].(string); ok {
		rec.SessionHandle = v
	}
	if v, ok := row.Fields[airtableHistoryField].(string); ok {
		rec.Turns = conversation.DecodeHistory(v)
	}
	return rec, nil
}

func (a *Airtable) Save(_ context.Context, rec *conversation.Record) error {
	history, err := conversation.EncodeHistory(rec.Turns)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	fields := map[string]interface{}{
		airtableUserField:    rec.UserID,
		airtableHistoryField: history,
		airtableSessionField: rec.SessionHandle,
	}

	if rec.ID == "" {
		created, err := a.table.AddRecords(&airtable.Records{
			Records: []*airtable.Record{{Fields: fields}},
		})
		if err != nil {
			return fmt.Errorf("airtable create: %w", err)
		}
		if len(created.Records) == 0 {
			return fmt.Errorf("airtable create returned no record")
		}
		rec.ID = created.Records[0].ID
		return nil
	}

	_, err = a.table.UpdateRecords(&airtable.Records{
		Records: []*airtable.Record{{ID: rec.ID, Fields: fields}},
	})
	if err != nil {
		return fmt.Errorf("airtable update: %w", err)
	}
	return nil
}
