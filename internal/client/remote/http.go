package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/logging"
	"github.com/oficinahq/garagesync/internal/models"
)

const defaultTimeout = 10 * time.Second

// HTTPBackend talks JSON to the GarageSync server API. Idempotent
// reads are retried with a short fibonacci backoff; mutations are
// submitted exactly once per call (the pending-operation queue is the
// retry mechanism for those).
type HTTPBackend struct {
	baseURL string
	hc      *http.Client
	log     logging.Logger
}

// NewHTTPBackend returns a backend bound to baseURL, e.g.
// "http://localhost:8080". timeout bounds every remote call; zero
// selects the default.
func NewHTTPBackend(baseURL string, timeout time.Duration, log logging.Logger) *HTTPBackend {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		log:     log,
	}
}

func readBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))
}

// get performs a GET with retry on transport errors and 5xx responses
// and decodes the JSON body into out.
func (b *HTTPBackend) get(ctx context.Context, url string, out any) (int, error) {
	var status int
	err := retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := b.hc.Do(req)
		if err != nil {
			b.log.Warn(ctx, "remote read failed, will retry", "url", url, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if status >= http.StatusInternalServerError {
			b.log.Warn(ctx, "remote read failed, will retry", "url", url, "status", resp.Status)
			return retry.RetryableError(fmt.Errorf("server returned %s", resp.Status))
		}
		if status != http.StatusOK {
			// Let the caller interpret 404 and other client statuses.
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: GET %s: %v", common.ErrRemote, url, err)
	}
	return status, nil
}

func (b *HTTPBackend) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	var payloads []json.RawMessage
	status, err := b.get(ctx, b.baseURL+"/api/"+kind.String(), &payloads)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: listing %s: status %d", common.ErrRemote, kind, status)
	}

	recs := make([]models.Record, 0, len(payloads))
	for _, p := range payloads {
		rec, err := models.RecordFromPayload(kind, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRemote, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (b *HTTPBackend) GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error) {
	var payload json.RawMessage
	status, err := b.get(ctx, b.baseURL+"/api/"+kind.String()+"/"+id, &payload)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		rec, err := models.RecordFromPayload(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRemote, err)
		}
		return &rec, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: getting %s %s: status %d", common.ErrRemote, kind, id, status)
	}
}

func (b *HTTPBackend) Upsert(ctx context.Context, rec models.Record) (models.Record, error) {
	if err := rec.Validate(); err != nil {
		return models.Record{}, err
	}

	url := b.baseURL + "/api/" + rec.Kind.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(rec.Data))
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", common.ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.hc.Do(req)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: upserting %s: %v", common.ErrRemote, rec.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.Record{}, fmt.Errorf("%w: upserting %s: %s: %s",
			common.ErrRemote, rec.Kind, resp.Status, strings.TrimSpace(string(body)))
	}

	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Record{}, fmt.Errorf("%w: decoding upsert response: %v", common.ErrRemote, err)
	}
	saved, err := models.RecordFromPayload(rec.Kind, payload)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", common.ErrRemote, err)
	}
	return saved, nil
}

func (b *HTTPBackend) Delete(ctx context.Context, kind models.Kind, id string) error {
	url := b.baseURL + "/api/" + kind.String() + "/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRemote, err)
	}

	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: deleting %s %s: %v", common.ErrRemote, kind, id, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		// 404 means the row is already gone; deletes are idempotent.
		return nil
	default:
		return fmt.Errorf("%w: deleting %s %s: %s", common.ErrRemote, kind, id, resp.Status)
	}
}

func (b *HTTPBackend) Head(ctx context.Context, kind models.Kind) (int64, error) {
	var out struct {
		Seq int64 `json:"seq"`
	}
	status, err := b.get(ctx, b.baseURL+"/api/"+kind.String()+"/head", &out)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("%w: head of %s: status %d", common.ErrRemote, kind, status)
	}
	return out.Seq, nil
}

func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/ping", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRemote, err)
	}
	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ping: %v", common.ErrRemote, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping: %s", common.ErrRemote, resp.Status)
	}
	return nil
}
