package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	kycq "github.com/AKSHAT-ARORA03/SahajKYC-sub001"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/backoff"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/id"
	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/job"
)

// jobToMap flattens a job into Redis Hash fields. The payload is
// msgpack-encoded; everything else is stored as strings so the Lua
// scripts can read individual fields.
func jobToMap(j *job.Job) (map[string]interface{}, error) {
	payload, err := msgpack.Marshal(j.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	m := map[string]interface{}{
		"id":                     j.ID.String(),
		"queue":                  j.Queue,
		"type":                   j.Type,
		"payload":                string(payload),
		"state":                  string(j.State),
		"priority":               strconv.Itoa(j.Priority),
		"attempts_made":          strconv.Itoa(j.AttemptsMade),
		"max_attempts":           strconv.Itoa(j.MaxAttempts),
		"backoff_kind":           string(j.Backoff.Kind),
		"backoff_base":           strconv.FormatInt(int64(j.Backoff.BaseDelay), 10),
		"backoff_max":            strconv.FormatInt(int64(j.Backoff.MaxDelay), 10),
		"retain_completed_count": strconv.Itoa(j.RetainCompleted.Count),
		"retain_completed_age":   strconv.FormatInt(int64(j.RetainCompleted.Age), 10),
		"retain_failed_count":    strconv.Itoa(j.RetainFailed.Count),
		"retain_failed_age":      strconv.FormatInt(int64(j.RetainFailed.Age), 10),
		"last_error":             j.LastError,
		"progress":               strconv.FormatFloat(j.Progress, 'g', -1, 64),
		"seq":                    strconv.FormatInt(j.Seq, 10),
		"run_at":                 j.RunAt.UTC().Format(time.RFC3339Nano),
		"created_at":             j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":             j.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !j.WorkerID.IsNil() {
		m["worker_id"] = j.WorkerID.String()
	}
	if j.ProcessedAt != nil {
		m["processed_at"] = j.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	if j.LeaseExpiry != nil {
		m["lease_expiry"] = j.LeaseExpiry.UTC().Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("kycq/redis: parse job id: %w", err)
	}

	var payload job.Payload
	if raw := m["payload"]; raw != "" {
		if err := msgpack.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("kycq/redis: decode payload: %w", err)
		}
	}

	priority, _ := strconv.Atoi(m["priority"])                 //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts_made"])            //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])          //nolint:errcheck // best-effort parse from trusted Redis data
	boBase, _ := strconv.ParseInt(m["backoff_base"], 10, 64)   //nolint:errcheck // best-effort parse from trusted Redis data
	boMax, _ := strconv.ParseInt(m["backoff_max"], 10, 64)     //nolint:errcheck // best-effort parse from trusted Redis data
	rcCount, _ := strconv.Atoi(m["retain_completed_count"])    //nolint:errcheck // best-effort parse from trusted Redis data
	rcAge, _ := strconv.ParseInt(m["retain_completed_age"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	rfCount, _ := strconv.Atoi(m["retain_failed_count"])       //nolint:errcheck // best-effort parse from trusted Redis data
	rfAge, _ := strconv.ParseInt(m["retain_failed_age"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	progress, _ := strconv.ParseFloat(m["progress"], 64)       //nolint:errcheck // best-effort parse from trusted Redis data
	seq, _ := strconv.ParseInt(m["seq"], 10, 64)               //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: kycq.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           jID,
		Queue:        m["queue"],
		Type:         m["type"],
		Payload:      payload,
		State:        job.State(m["state"]),
		Priority:     priority,
		AttemptsMade: attempts,
		MaxAttempts:  maxAttempts,
		Backoff: backoff.Policy{
			Kind:      backoff.Kind(m["backoff_kind"]),
			BaseDelay: time.Duration(boBase),
			MaxDelay:  time.Duration(boMax),
		},
		RetainCompleted: job.Retention{Count: rcCount, Age: time.Duration(rcAge)},
		RetainFailed:    job.Retention{Count: rfCount, Age: time.Duration(rfAge)},
		LastError:       m["last_error"],
		Progress:        progress,
		Seq:             seq,
		RunAt:           runAt,
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["processed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.ProcessedAt = &t
	}
	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.FinishedAt = &t
	}
	if v := m["lease_expiry"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.LeaseExpiry = &t
	}

	return j, nil
}
