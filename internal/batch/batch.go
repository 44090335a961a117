// Package batch er den eneste plassen i motoren som håndhever
// parallellitetsgrenser. Alle bulk-operasjoner (repos i en
// organisasjon, issues i et repo, kommentarer i en issue) komponeres
// gjennom Run med hver sin uavhengige grense, fordi rate-grensene hos
// de eksterne APIene varierer per endepunktklasse.
package batch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Result er utfallet for ett item etter at alle forsøk er brukt opp.
type Result[T any] struct {
	Item     T
	Err      error
	Attempts int
}

// ProgressFunc kalles etter hvert terminale utfall (suksess eller
// endelig feil).
type ProgressFunc[T any] func(completed, total int, res Result[T])

// RetryFunc kalles før hvert nye forsøk.
type RetryFunc[T any] func(item T, err error, attempt int)

// DelayFunc gir ventetiden før forsøk nummer attempt (1-basert).
type DelayFunc func(attempt int) time.Duration

// ConstantDelay venter like lenge mellom hvert forsøk.
func ConstantDelay(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// ExponentialDelay dobler ventetiden per forsøk opp til max, uten
// jitter slik at oppførselen er deterministisk i test.
func ExponentialDelay(initial, max time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = max
		b.RandomizationFactor = 0
		b.Multiplier = 2
		var d time.Duration
		for i := 0; i < attempt; i++ {
			d = b.NextBackOff()
		}
		return d
	}
}

// Options styrer én kjøring. Retryable avgjør om en feil er verdt et
// nytt forsøk; uten satt Retryable prøves alle feil på nytt.
type Options[T any] struct {
	Concurrency int
	MaxRetries  int
	Delay       DelayFunc
	Retryable   func(error) bool
	OnProgress  ProgressFunc[T]
	OnRetry     RetryFunc[T]
}

// Run kjører op over alle items med maks Concurrency i flight.
// Ett items oppbrukte forsøk avbryter aldri søsken-items. Resultatene
// returneres i input-rekkefølge slik at kalleren kan handle per item.
func Run[T any](ctx context.Context, items []T, op func(context.Context, T) error, opts Options[T]) []Result[T] {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Delay == nil {
		opts.Delay = ConstantDelay(time.Second)
	}

	results := make([]Result[T], len(items))
	var completed int
	done := make(chan int, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	// Fremdrift rapporteres fra én goroutine slik at OnProgress aldri
	// kalles samtidig og completed teller riktig.
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for idx := range done {
			completed++
			if opts.OnProgress != nil {
				opts.OnProgress(completed, len(items), results[idx])
			}
		}
	}()

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		i, item := i, item
		g.Go(func() error {
			res := runOne(gctx, item, op, opts)
			results[i] = res
			done <- i
			return nil
		})
	}

	_ = g.Wait()
	close(done)
	<-progressDone

	return results
}

func runOne[T any](ctx context.Context, item T, op func(context.Context, T) error, opts Options[T]) Result[T] {
	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		err := op(ctx, item)
		if err == nil {
			return Result[T]{Item: item, Attempts: attempt}
		}
		lastErr = err

		if opts.Retryable != nil && !opts.Retryable(err) {
			return Result[T]{Item: item, Err: err, Attempts: attempt}
		}
		if attempt == opts.MaxRetries+1 {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(item, err, attempt)
		}

		select {
		case <-ctx.Done():
			return Result[T]{Item: item, Err: lastErr, Attempts: attempt}
		case <-time.After(opts.Delay(attempt)):
		}
	}
	return Result[T]{Item: item, Err: lastErr, Attempts: opts.MaxRetries + 1}
}
