package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"customs-ledger/internal/clients"

	"github.com/google/uuid"
)

const reportExportType = "payment_report"

// ExportNotifier is implemented by clients.WebSocketClient.
type ExportNotifier interface {
	NotifyExportProgress(ctx context.Context, userID int64, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, userID int64, exportID, url, filename string) error
	NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error
}

type ReportExportService struct {
	reports  *ReportService
	kv       ExportKV
	files    clients.FileStore
	notifier ExportNotifier
	prefix   string
	timeout  time.Duration
}

func NewReportExportService(reports *ReportService, kv ExportKV, files clients.FileStore, notifier ExportNotifier, prefix string) *ReportExportService {
	if prefix == "" {
		prefix = "report_export"
	}
	return &ReportExportService{
		reports:  reports,
		kv:       kv,
		files:    files,
		notifier: notifier,
		prefix:   prefix,
		timeout:  10 * time.Minute,
	}
}

func (s *ReportExportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	if s.kv == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, st.Key, string(data), exportTTL); err != nil {
		return err
	}
	return s.kv.SAdd(ctx, exportSetKey, st.Key)
}

func (s *ReportExportService) progress(ctx context.Context, st *ExportStatus, progress float64, stage string) {
	st.Progress = progress
	if err := s.saveStatus(ctx, st); err != nil {
		log.Printf("[REPORT] export %s: save status: %v", st.Key, err)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyExportProgress(ctx, st.UserID, st.Key, progress, stage)
	}
}

// StartExport records the export and renders it in the background. The
// returned id is the key of the status record.
func (s *ReportExportService) StartExport(ctx context.Context, format string, userID int64) (string, error) {
	f, err := ParseReportFormat(format)
	if err != nil {
		return "", err
	}

	exportID := fmt.Sprintf("%s:%s", s.prefix, uuid.NewString())
	status := &ExportStatus{
		Key:      exportID,
		Type:     reportExportType,
		UserID:   userID,
		Filters:  map[string]any{"format": string(f)},
		Progress: 0,
		Created:  time.Now(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		log.Printf("[REPORT] export %s: save status: %v", exportID, err)
	}

	go s.run(exportID, f, status)

	return exportID, nil
}

func (s *ReportExportService) run(exportID string, format ReportFormat, status *ExportStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.progress(ctx, status, 10, "collecting")

	rendered, err := s.reports.Generate(ctx, format)
	if err != nil {
		s.fail(ctx, status, fmt.Sprintf("generate report failed: %v", err))
		return
	}

	s.progress(ctx, status, 95, "uploading")

	if s.files == nil {
		s.fail(ctx, status, "file storage not configured")
		return
	}
	url, err := s.files.Put(ctx, rendered.FileName, rendered.ContentType, rendered.Data)
	if err != nil {
		s.fail(ctx, status, fmt.Sprintf("save export failed: %v", err))
		return
	}

	status.FileURL = &url
	s.progress(ctx, status, 100, "ready")
	if s.notifier != nil {
		_ = s.notifier.NotifyExportComplete(ctx, status.UserID, exportID, url, rendered.FileName)
	}
	log.Printf("[REPORT] export %s ready: %s (%d bytes)", exportID, rendered.FileName, len(rendered.Data))
}

func (s *ReportExportService) fail(ctx context.Context, status *ExportStatus, errStr string) {
	log.Printf("[REPORT] export %s: %s", status.Key, errStr)
	status.Error = &errStr
	status.Progress = 100
	if err := s.saveStatus(ctx, status); err != nil {
		log.Printf("[REPORT] export %s: save status: %v", status.Key, err)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyExportFailed(ctx, status.UserID, status.Key, errStr)
	}
}
