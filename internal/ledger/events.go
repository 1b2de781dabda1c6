package ledger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
)

// Event is one record from a contract's event log.
type Event struct {
	EventIndex  int          `json:"event_index"`
	EventType   string       `json:"event_type"`
	TxID        string       `json:"tx_id"`
	ContractLog *ContractLog `json:"contract_log,omitempty"`
}

// ContractLog is the print payload of a smart_contract_log event.
type ContractLog struct {
	ContractID string   `json:"contract_id"`
	Topic      string   `json:"topic"`
	Value      LogValue `json:"value"`
}

// LogValue carries the serialized payload and the node's own repr of it.
type LogValue struct {
	Hex  string `json:"hex"`
	Repr string `json:"repr"`
}

// Payload decodes the event's print value as a tuple. Events without a log,
// or with an undecodable one, yield an empty Record.
func (e Event) Payload() clarity.Record {
	if e.ContractLog == nil || e.ContractLog.Value.Hex == "" {
		return clarity.Record{}
	}
	v, err := clarity.DecodeHex(e.ContractLog.Value.Hex)
	if err != nil {
		return clarity.Record{}
	}
	return clarity.FlattenTuple(&v)
}

// EventPage is one page of a contract event log.
type EventPage struct {
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	Total   int     `json:"total"`
	Results []Event `json:"results"`
}

// FetchEventPage fetches one page of events for a fully qualified contract id.
func (c *Client) FetchEventPage(ctx context.Context, contractID string, limit, offset int) (EventPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	path := fmt.Sprintf("/extended/v1/contract/%s/events?%s", url.PathEscape(contractID), q.Encode())

	var page EventPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		c.metrics.RecordLedgerRequest("events", "error")
		return EventPage{}, fmt.Errorf("events %s offset %d: %w", contractID, offset, err)
	}
	c.metrics.RecordLedgerRequest("events", "ok")
	return page, nil
}

// FetchAllEvents pages forward through a contract's log until a page comes
// back short, returning events in log order.
//
// A page that fails to load is treated as the end of the log: the events
// gathered so far are returned without error. The only error is
// cancellation of ctx.
func (c *Client) FetchAllEvents(ctx context.Context, contractID string) ([]Event, error) {
	var events []Event
	for offset := 0; ; offset += c.pageSize {
		page, err := c.FetchEventPage(ctx, contractID, c.pageSize, offset)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Warn().Err(err).
				Str("contract", contractID).
				Int("offset", offset).
				Int("fetched", len(events)).
				Msg("event page failed, truncating log")
			break
		}
		events = append(events, page.Results...)
		if len(page.Results) < c.pageSize {
			break
		}
	}
	return events, nil
}
