package claims

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLedgerInsertRejectsDuplicate(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.Insert(Record{ClaimID: "c1"}))
	assert.False(t, l.Insert(Record{ClaimID: "c1"}))
	assert.Equal(t, 1, l.Len())
}

func TestLedgerResolveTransitionsOpenToClosed(t *testing.T) {
	l := NewLedger()
	l.Insert(Record{ClaimID: "c1", SubmittedAt: time.Now()})

	rec, _ := l.Get("c1")
	assert.Equal(t, Open, rec.Status())

	ok := l.Resolve("c1", Remittance{ClaimID: "c1"}, time.Now())
	assert.True(t, ok)

	rec, _ = l.Get("c1")
	assert.Equal(t, Closed, rec.Status())
}

func TestLedgerResolveUnknownClaimReportsFalse(t *testing.T) {
	l := NewLedger()
	assert.False(t, l.Resolve("missing", Remittance{}, time.Now()))
}

func TestLedgerConcurrentAccess(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Insert(Record{ClaimID: string(rune('a' + i%26)) + string(rune(i))})
		}(i)
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				l.Snapshot()
			}
		}
	}()
	wg.Wait()
	close(done)
	assert.Equal(t, 100, l.Len())
}
