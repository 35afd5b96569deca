package storage

import (
	"sync"

	"github.com/rs/zerolog/log"

	"trustnet/internal/ml"
	"trustnet/internal/transaction"
)

// RecorderMetrics is the narrow metrics surface the recorder needs.
type RecorderMetrics interface {
	StorageErrorsInc()
}

// Recorder persists scored transactions in the background so storage
// latency and failures never affect the scoring response. Writes are
// fire-and-forget: when the buffer is full the record is dropped and
// counted.
type Recorder struct {
	store   *Store
	metrics RecorderMetrics
	ch      chan recordJob
	wg      sync.WaitGroup
	once    sync.Once
}

type recordJob struct {
	tx     transaction.Transaction
	result *ml.Result
}

// NewRecorder starts the background writer with the given buffer size.
func NewRecorder(store *Store, buffer int, metrics RecorderMetrics) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:   store,
		metrics: metrics,
		ch:      make(chan recordJob, buffer),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues a scored transaction for persistence. It never blocks.
func (r *Recorder) Record(tx transaction.Transaction, result *ml.Result) {
	select {
	case r.ch <- recordJob{tx: tx, result: result}:
	default:
		log.Warn().Str("transaction_id", result.TransactionID).Msg("recorder buffer full, dropping record")
		if r.metrics != nil {
			r.metrics.StorageErrorsInc()
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for job := range r.ch {
		if err := r.store.StorePrediction(job.tx, job.result); err != nil {
			log.Error().Err(err).Str("transaction_id", job.result.TransactionID).Msg("failed to store prediction")
			if r.metrics != nil {
				r.metrics.StorageErrorsInc()
			}
		}
	}
}

// Close drains pending records and stops the writer.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.ch)
		r.wg.Wait()
	})
}
