package clients

import (
	"context"
	"fmt"

	ws "customs-ledger/internal/transport/websocket"
)

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) NotifyExportProgress(ctx context.Context, userID int64, exportID string, progress float64, stage string) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]interface{}{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "report_export_progress",
		Channel: fmt.Sprintf("report_exports#%d", userID),
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(ctx context.Context, userID int64, exportID, url, filename string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "report_export_complete",
		Channel: fmt.Sprintf("report_exports#%d", userID),
		Data: map[string]interface{}{
			"id":       exportID,
			"url":      url,
			"filename": filename,
			"user_id":  userID,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "report_export_failed",
		Channel: fmt.Sprintf("report_exports#%d", userID),
		Data: map[string]interface{}{
			"id":      exportID,
			"message": errMsg,
			"user_id": userID,
		},
	})
	return nil
}

// NotifyLedgerReset tells every listed user that the distribution ledger was wiped.
func (c *WebSocketClient) NotifyLedgerReset(ctx context.Context, userIDs []int64, removed int64) error {
	if c.hub == nil {
		return nil
	}
	for _, id := range userIDs {
		c.hub.Broadcast(id, &ws.Message{
			Type:    "ledger_reset",
			Channel: fmt.Sprintf("ledger#%d", id),
			Data:    map[string]interface{}{"removed": removed},
		})
	}
	return nil
}

// BroadcastLedgerReset notifies every user currently connected to the hub.
func (c *WebSocketClient) BroadcastLedgerReset(ctx context.Context, removed int64) error {
	if c == nil || c.hub == nil {
		return nil
	}
	return c.NotifyLedgerReset(ctx, c.hub.Users(), removed)
}
