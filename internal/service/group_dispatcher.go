package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/observability/metrics"
)

// Group rejections. Each maps to a fixed HTTP status (see GroupErrorStatus).
var (
	ErrGroupNotFound = model.ErrGroupNotFound
	ErrGroupDisabled = errors.New("group is disabled")
	ErrGroupEmpty    = errors.New("group has no endpoints")
)

// GroupErrorStatus maps a DispatchGroup error to its HTTP status.
func GroupErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrGroupDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrGroupEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GroupResponse is the outcome of a group push: Result for synchronous delivery,
// Accepted for queued delivery.
type GroupResponse struct {
	HTTPStatus int
	Result     *model.GroupResult
	Accepted   *model.GroupAccepted
}

// Payload returns the JSON body for the response.
func (r GroupResponse) Payload() any {
	if r.Result != nil {
		return r.Result
	}
	return r.Accepted
}

// GroupDispatcher pushes one body to every endpoint of a group.
type GroupDispatcher interface {
	DispatchGroup(ctx context.Context, groupID string, body any) (GroupResponse, error)
}

// Executor runs a single endpoint push. *PushExecutor implements it.
type Executor interface {
	Execute(ctx context.Context, params ExecuteParams) model.PushResult
}

// resolveGroup loads a group and applies the status and membership checks shared by both modes.
func resolveGroup(ctx context.Context, groups core.GroupRepository, groupID string) (*model.Group, error) {
	group, err := groups.GetWithMembers(ctx, groupID)
	if err != nil {
		if errors.Is(err, model.ErrGroupNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group %s: %w", groupID, err)
	}
	if group.Status == model.StatusInactive {
		return nil, ErrGroupDisabled
	}
	if len(group.EndpointIDs) == 0 {
		return nil, ErrGroupEmpty
	}
	return group, nil
}

// SyncGroupDispatcherOptions groups dependencies for SyncGroupDispatcher.
type SyncGroupDispatcherOptions struct {
	Groups    core.GroupRepository // Required
	Executor  Executor             // Required
	Endpoints EndpointResolver     // Optional: resolves member names for the details list
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// SyncGroupDispatcher executes every member in parallel and waits for all of them.
type SyncGroupDispatcher struct {
	groups    core.GroupRepository
	executor  Executor
	endpoints EndpointResolver
	metrics   metrics.Recorder
	logger    *slog.Logger
}

var _ GroupDispatcher = (*SyncGroupDispatcher)(nil)

// NewSyncGroupDispatcher constructs a SyncGroupDispatcher.
func NewSyncGroupDispatcher(opts SyncGroupDispatcherOptions) (*SyncGroupDispatcher, error) {
	if opts.Groups == nil {
		return nil, errors.New("group repository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("push executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncGroupDispatcher{
		groups:    opts.Groups,
		executor:  opts.Executor,
		endpoints: opts.Endpoints,
		metrics:   metrics.OrNop(opts.Metrics),
		logger:    logger.With("component", "group_dispatcher", "mode", "sync"),
	}, nil
}

// DispatchGroup runs the executor once per member with a fresh request id.
// A failing member never cancels the others.
func (d *SyncGroupDispatcher) DispatchGroup(ctx context.Context, groupID string, body any) (GroupResponse, error) {
	start := time.Now()
	group, err := resolveGroup(ctx, d.groups, groupID)
	if err != nil {
		return GroupResponse{}, err
	}

	details := make([]model.GroupDetail, len(group.EndpointIDs))
	var g errgroup.Group
	for i, endpointID := range group.EndpointIDs {
		g.Go(func() error {
			requestID := uuid.NewString()
			res := d.executor.Execute(ctx, ExecuteParams{EndpointID: endpointID, RequestID: requestID, Body: body})
			detail := model.GroupDetail{
				EndpointID:   endpointID,
				EndpointName: d.endpointName(ctx, endpointID),
				RequestID:    requestID,
				Status:       res.Status(),
			}
			if !res.OK {
				detail.Error = res.ResponseBody
				if detail.Error == "" {
					detail.Error = string(model.PushStatusFailed)
				}
			}
			details[i] = detail
			return nil
		})
	}
	_ = g.Wait()

	result := &model.GroupResult{
		Status:    "done",
		Message:   fmt.Sprintf("Group %s processed", group.Name),
		GroupID:   group.ID,
		GroupName: group.Name,
		Total:     len(details),
		Details:   details,
	}
	for _, detail := range details {
		if detail.Status == model.PushStatusSuccess {
			result.SuccessCount++
		}
	}
	result.FailedCount = result.Total - result.SuccessCount

	d.metrics.RecordGroup(metrics.GroupMetric{
		Mode:      "sync",
		Total:     result.Total,
		Succeeded: result.SuccessCount,
		Failed:    result.FailedCount,
		Duration:  time.Since(start),
	})
	d.logger.InfoContext(ctx, "group push completed",
		"group_id", group.ID,
		"total", result.Total,
		"success_count", result.SuccessCount,
		"failed_count", result.FailedCount)

	return GroupResponse{HTTPStatus: http.StatusOK, Result: result}, nil
}

func (d *SyncGroupDispatcher) endpointName(ctx context.Context, endpointID string) string {
	if d.endpoints == nil {
		return ""
	}
	ep, err := d.endpoints.Get(ctx, endpointID)
	if err != nil || ep == nil {
		return ""
	}
	return ep.Name
}

// QueueGroupDispatcherOptions groups dependencies for QueueGroupDispatcher.
type QueueGroupDispatcherOptions struct {
	Groups  core.GroupRepository // Required
	Queue   core.PushQueue       // Required
	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// QueueGroupDispatcher enqueues one message per member and returns without waiting for delivery.
type QueueGroupDispatcher struct {
	groups  core.GroupRepository
	queue   core.PushQueue
	metrics metrics.Recorder
	logger  *slog.Logger
}

var _ GroupDispatcher = (*QueueGroupDispatcher)(nil)

// NewQueueGroupDispatcher constructs a QueueGroupDispatcher.
func NewQueueGroupDispatcher(opts QueueGroupDispatcherOptions) (*QueueGroupDispatcher, error) {
	if opts.Groups == nil {
		return nil, errors.New("group repository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("push queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueGroupDispatcher{
		groups:  opts.Groups,
		queue:   opts.Queue,
		metrics: metrics.OrNop(opts.Metrics),
		logger:  logger.With("component", "group_dispatcher", "mode", "queue"),
	}, nil
}

// DispatchGroup enqueues the batch and reports 202 Accepted.
func (d *QueueGroupDispatcher) DispatchGroup(ctx context.Context, groupID string, body any) (GroupResponse, error) {
	start := time.Now()
	group, err := resolveGroup(ctx, d.groups, groupID)
	if err != nil {
		return GroupResponse{}, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return GroupResponse{}, fmt.Errorf("encode group body: %w", err)
	}

	msgs := make([]model.PushMessage, 0, len(group.EndpointIDs))
	for _, endpointID := range group.EndpointIDs {
		msgs = append(msgs, model.PushMessage{
			RequestID:  uuid.NewString(),
			EndpointID: endpointID,
			Body:       raw,
		})
	}
	if err := d.queue.SendBatch(ctx, msgs); err != nil {
		return GroupResponse{}, fmt.Errorf("enqueue group %s: %w", group.ID, err)
	}

	d.metrics.RecordGroup(metrics.GroupMetric{Mode: "queue", Total: len(msgs), Duration: time.Since(start)})
	d.logger.InfoContext(ctx, "group push enqueued", "group_id", group.ID, "total", len(msgs))

	return GroupResponse{
		HTTPStatus: http.StatusAccepted,
		Accepted: &model.GroupAccepted{
			Status:    "accepted",
			Message:   fmt.Sprintf("Group %s queued", group.Name),
			GroupID:   group.ID,
			GroupName: group.Name,
			Total:     len(msgs),
		},
	}, nil
}
