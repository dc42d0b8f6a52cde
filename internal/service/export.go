package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"customs-ledger/internal/domain"
)

type ExportStatus struct {
	Key      string    `json:"key"`
	Type     string    `json:"type"`
	UserID   int64     `json:"user_id"`
	Filters  any       `json:"filters"`
	Progress float64   `json:"progress"`
	FileURL  *string   `json:"file_url"`
	Error    *string   `json:"error,omitempty"`
	Created  time.Time `json:"created_at"`
}

const (
	exportSetKey = "export_ids"
	exportTTL    = 20 * time.Minute
)

// ExportKV is the slice of the redis client export bookkeeping needs.
type ExportKV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...any) error
}

type ExportService struct {
	kv  ExportKV
	now func() time.Time
}

func NewExportService(kv ExportKV) *ExportService {
	return &ExportService{kv: kv, now: time.Now}
}

func (s *ExportService) GetExports(ctx context.Context, userID int64) ([]map[string]any, error) {
	if s.kv == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.kv.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	var statuses []ExportStatus
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			// status expired, the set member is stale
			if rmErr := s.kv.SRem(ctx, exportSetKey, key); rmErr != nil {
				log.Printf("[EXPORT] drop stale key %s: %v", key, rmErr)
			}
			continue
		}

		var status ExportStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}
		if status.UserID == userID {
			statuses = append(statuses, status)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	exports := make([]map[string]any, 0, len(statuses))
	for _, status := range statuses {
		exports = append(exports, s.exportMap(status))
	}
	return exports, nil
}

func (s *ExportService) GetExport(ctx context.Context, exportID string, userID int64) (map[string]any, error) {
	if s.kv == nil {
		return nil, errors.New("redis client not configured")
	}

	data, err := s.kv.Get(ctx, exportID)
	if err != nil {
		return nil, domain.ErrExportNotFound
	}

	var status ExportStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to parse export status: %w", err)
	}
	if status.UserID != userID {
		return nil, domain.ErrExportNotFound
	}
	return s.exportMap(status), nil
}

func (s *ExportService) exportMap(status ExportStatus) map[string]any {
	return map[string]any{
		"key":        status.Key,
		"type":       status.Type,
		"user_id":    status.UserID,
		"progress":   status.Progress,
		"file_url":   status.FileURL,
		"error":      status.Error,
		"filters":    status.Filters,
		"created_at": humanizeAgo(status.Created, s.now()),
	}
}

func humanizeAgo(t, now time.Time) string {
	if t.After(now) {
		return "just now"
	}

	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "just now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d %s ago", minutes, plural(minutes, "minute", "minutes"))
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%d %s ago", hours, plural(hours, "hour", "hours"))
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("%d %s ago", days, plural(days, "day", "days"))
	}
	return t.Format("2006-01-02 15:04")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
