// Package pipeline holds what the ingestion stages share: the document
// status collaborator and the failure bookkeeping around it.
package pipeline

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// StatusUpdater 更新文档处理状态。
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, documentID string, status model.DocumentStatus, errMsg string) error
}

// StoreStatus 基于文档存储实现 StatusUpdater。
type StoreStatus struct {
	Documents store.DocumentStore
}

var _ StatusUpdater = StoreStatus{}

// UpdateStatus 实现 StatusUpdater。
func (s StoreStatus) UpdateStatus(ctx context.Context, documentID string, status model.DocumentStatus, errMsg string) error {
	_, err := s.Documents.UpdateStatus(ctx, documentID, status, errMsg)
	return err
}

// Begin moves a document to processing. A document that is gone, or has
// already completed, is dropped: the message is stale.
func Begin(ctx context.Context, s StatusUpdater, documentID string) error {
	err := s.UpdateStatus(ctx, documentID, model.DocumentStatusProcessing, "")
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrDocumentNotFound), stderrors.Is(err, errors.ErrInvalidStatus):
		return rabbitmq.Drop(err)
	default:
		return rabbitmq.Retry(err)
	}
}

// Fail records a failure. Retryable errors only mark the document failed
// on the last attempt; anything else marks it failed immediately. The
// returned error is err, so the caller can return it to the broker.
func Fail(ctx context.Context, s StatusUpdater, d *rabbitmq.Delivery, documentID string, err error) error {
	if err == nil {
		return nil
	}
	if rabbitmq.IsRetryable(err) && !d.IsLastAttempt() {
		return err
	}
	if ctx.Err() != nil || stderrors.Is(err, errors.ErrBrokerUnavailable) {
		return err
	}
	if uerr := s.UpdateStatus(context.WithoutCancel(ctx), documentID, model.DocumentStatusFailed, FailureMessage(err)); uerr != nil {
		logger.Errorw("Failed to mark document failed",
			"document_id", documentID,
			"error", err.Error(),
			"update_error", uerr.Error(),
		)
	}
	return err
}

// FailureMessage renders err for documents.error_message.
func FailureMessage(err error) string {
	if e := errors.FromError(err); e != nil {
		if cause := stderrors.Unwrap(e); cause != nil {
			return e.Message("en") + ": " + cause.Error()
		}
		return e.Message("en")
	}
	return err.Error()
}
