// Package auditlog implements the two append-only persisted artifacts the
// spec names in §6 Persistence: the incident/audit log and the historical
// opportunity/execution log. Both are JSONL with a monotonic sequence
// number; this package owns the record shape and a Writer interface, while
// the actual sink (file, Kafka topic, both) is selected by configuration,
// grounded in the teacher's pkg/messaging/kafka.go MessageBus pattern.
package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Record is one entry in either persisted log. Kind distinguishes the two
// logical streams ("incident"/"audit" vs "opportunity"/"execution") so a
// single Writer can serve both files/topics if desired.
type Record struct {
	Seq       int64          `json:"seq"`
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Writer appends Records to the persisted log.
type Writer interface {
	Append(ctx context.Context, kind string, data map[string]any) error
	Close() error
}

// FileWriter appends newline-delimited JSON records to a local file,
// assigning a monotonic in-process sequence number.
type FileWriter struct {
	mu   sync.Mutex
	seq  int64
	f    *os.File
	w    *bufio.Writer
}

// NewFileWriter opens (creating if necessary) the JSONL file at path for
// appending.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %q: %w", path, err)
	}
	return &FileWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one record, flushing immediately so a crash loses at most
// the in-flight write.
func (fw *FileWriter) Append(_ context.Context, kind string, data map[string]any) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	rec := Record{
		Seq:       atomic.AddInt64(&fw.seq, 1),
		Kind:      kind,
		Timestamp: time.Now(),
		Data:      data,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := fw.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return fw.w.Flush()
}

// Close flushes and closes the underlying file.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.w.Flush(); err != nil {
		return err
	}
	return fw.f.Close()
}

// KafkaWriter mirrors FileWriter but publishes each record as a Kafka
// message, keyed by Kind so a single topic can be partitioned by stream.
type KafkaWriter struct {
	mu     sync.Mutex
	seq    int64
	writer *kafka.Writer
}

// NewKafkaWriter constructs a writer publishing to the given topic.
func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Append publishes one record to the configured topic.
func (kw *KafkaWriter) Append(ctx context.Context, kind string, data map[string]any) error {
	kw.mu.Lock()
	seq := atomic.AddInt64(&kw.seq, 1)
	kw.mu.Unlock()

	rec := Record{Seq: seq, Kind: kind, Timestamp: time.Now(), Data: data}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return kw.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(kind),
		Value: b,
	})
}

// Close closes the underlying Kafka writer.
func (kw *KafkaWriter) Close() error {
	return kw.writer.Close()
}

// Multi fans Append out to several writers, returning the first error (if
// any) after attempting all of them, so a Kafka outage never silently
// drops the local file copy or vice versa.
type Multi struct {
	writers []Writer
}

// NewMulti combines writers into one Writer.
func NewMulti(writers ...Writer) *Multi {
	return &Multi{writers: writers}
}

func (m *Multi) Append(ctx context.Context, kind string, data map[string]any) error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Append(ctx, kind, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
