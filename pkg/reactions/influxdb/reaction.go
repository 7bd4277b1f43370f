// Package influxdb provides the influxdb.write reaction, which records execution data as a point.
package influxdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

var (
	ErrMissingMeasurement = errors.New("missing measurement")
	ErrMissingBucket      = errors.New("missing org or bucket")
	ErrNoFields           = errors.New("point has no fields")
)

type Reaction struct {
	client influxdb2.Client
	org    string
	bucket string
	logger *slog.Logger
}

// New uses org and bucket unless the instance params override them.
func New(client influxdb2.Client, org, bucket string, logger *slog.Logger) *Reaction {
	return &Reaction{
		client: client,
		org:    org,
		bucket: bucket,
		logger: logger.With("reaction", "influxdb.write"),
	}
}

func (r *Reaction) Key() protocol.Key {
	return protocol.NewKey("influxdb", "write")
}

// Handle writes one point. Tag and field params are templates; without a "fields" param every
// scalar input value becomes a field.
func (r *Reaction) Handle(ctx context.Context, req protocol.Request) (map[string]any, error) {
	const op = "influxdb.write"

	data := template.Data(req.Input, req.Params, req.Execution)

	measurement := req.StringParam("measurement")
	if measurement == "" {
		return nil, faults.Validation(op, "measurement param is required", ErrMissingMeasurement)
	}

	org := firstNonEmpty(stringValue(req.Params["org"]), r.org)
	bucket := firstNonEmpty(stringValue(req.Params["bucket"]), r.bucket)

	if org == "" || bucket == "" {
		return nil, faults.Validation(op, "org and bucket are required", ErrMissingBucket)
	}

	tags, err := renderTags(req, data)
	if err != nil {
		return nil, faults.Validation(op, "failed to render tags", err)
	}

	fields, err := renderFields(req, data)
	if err != nil {
		return nil, faults.Validation(op, "failed to render fields", err)
	}

	if len(fields) == 0 {
		return nil, faults.Validation(op, "nothing to write", ErrNoFields)
	}

	timestamp := time.Now().UTC()
	point := write.NewPoint(measurement, tags, fields, timestamp)

	if err := r.client.WriteAPIBlocking(org, bucket).WritePoint(ctx, point); err != nil {
		return nil, classify(op, err)
	}

	r.logger.DebugContext(ctx, "wrote point", "measurement", measurement, "bucket", bucket, "fields", len(fields))

	return map[string]any{
		"measurement": measurement,
		"bucket":      bucket,
		"fields":      sortedKeys(fields),
		"timestamp":   timestamp.Format(time.RFC3339Nano),
	}, nil
}

func renderTags(req protocol.Request, data map[string]any) (map[string]string, error) {
	raw, _ := req.Params["tags"].(map[string]any)
	tags := make(map[string]string, len(raw)+1)

	for key, value := range raw {
		rendered, err := template.RenderString(fmt.Sprint(value), data)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", key, err)
		}

		tags[key] = rendered
	}

	if req.Execution != nil && req.Execution.AreaID != "" {
		if _, ok := tags["area_id"]; !ok {
			tags["area_id"] = req.Execution.AreaID
		}
	}

	return tags, nil
}

func renderFields(req protocol.Request, data map[string]any) (map[string]any, error) {
	raw, ok := req.Params["fields"].(map[string]any)
	if !ok {
		fields := make(map[string]any)

		for key, value := range req.Input {
			switch value.(type) {
			case string, bool, int, int64, float64:
				fields[key] = value
			}
		}

		return fields, nil
	}

	fields := make(map[string]any, len(raw))

	for key, value := range raw {
		tmpl, isString := value.(string)
		if !isString {
			fields[key] = value

			continue
		}

		rendered, err := template.Render(tmpl, data)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}

		fields[key] = rendered
	}

	return fields, nil
}

func classify(op string, err error) error {
	var httpErr *influxhttp.Error
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized, httpErr.StatusCode == http.StatusForbidden:
			return faults.Auth(op, "write rejected", err)
		case httpErr.StatusCode == http.StatusNotFound:
			return faults.NotFound(op, "bucket not found", err)
		case httpErr.StatusCode >= http.StatusBadRequest && httpErr.StatusCode < http.StatusInternalServerError &&
			httpErr.StatusCode != http.StatusTooManyRequests:
			return faults.Validation(op, "write rejected", err)
		}
	}

	return faults.Transient(op, "write failed", err)
}

func stringValue(v any) string {
	s, _ := v.(string)

	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
