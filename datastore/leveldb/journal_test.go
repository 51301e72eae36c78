package leveldb

import (
	"path/filepath"
	"testing"
	"time"

	"masterclock/datamodel/cycle"
)

func testReport(id string, avg int64) *cycle.Report {
	return &cycle.Report{
		ID:        id,
		StartedAt: time.Unix(1700000000, 0),
		Duration:  150 * time.Millisecond,
		Targets:   2,
		Samples: []cycle.Sample{
			{Address: "10.0.0.1:9000", SendTime: 1000, ReceiveTime: 1200, ReportedTime: 5000, MasterTime: 5150, Latency: 100, AdjustedSlaveTime: 4900, Offset: 250},
		},
		Failures:      []cycle.Failure{{Address: "10.0.0.2:9000", Reason: "timeout"}},
		AverageOffset: avg,
		Adjusted:      2,
		Outcome:       cycle.OutcomeSynced,
	}
}

func TestJournalAppendAndLast(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal"), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	for i, id := range []string{"a", "b", "c"} {
		r, err := j.Append(testReport(id, int64(i)))
		if err != nil {
			t.Fatal(err)
		}
		if r.SequenceNumber != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", r.SequenceNumber, i+1)
		}
	}

	last, err := j.Last(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].ID != "c" || last[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", last)
	}

	got, err := j.GetBySeq(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "a" || got.Outcome != cycle.OutcomeSynced || len(got.Samples) != 1 || got.Samples[0].Offset != 250 {
		t.Fatalf("unexpected report %+v", got)
	}
	if got.Duration != 150*time.Millisecond || !got.StartedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
}

func TestJournalResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	j, err := NewJournal(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	j.Append(testReport("a", 1))
	j.Append(testReport("b", 2))
	j.Close()

	j, err = NewJournal(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if j.GetSeq() != 2 {
		t.Fatalf("seq = %d after reopen, want 2", j.GetSeq())
	}
	r, err := j.Append(testReport("c", 3))
	if err != nil {
		t.Fatal(err)
	}
	if r.SequenceNumber != 3 {
		t.Fatalf("seq = %d, want 3", r.SequenceNumber)
	}
}

func TestJournalRetention(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal"), 3)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	for i := 0; i < 10; i++ {
		if _, err := j.Append(testReport("r", int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := j.Last(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("retained %d reports, want 3", len(all))
	}
	if all[0].SequenceNumber != 10 || all[2].SequenceNumber != 8 {
		t.Fatalf("wrong entries retained: %d..%d", all[2].SequenceNumber, all[0].SequenceNumber)
	}
	if _, err := j.GetBySeq(7); err == nil {
		t.Fatal("seq 7 should have been dropped")
	}
}

func TestSeqKeyRoundTrip(t *testing.T) {
	for _, seq := range []uint64{0, 1, 255, 1 << 40} {
		got, err := seqFromKey(keyFromSeq(seq))
		if err != nil {
			t.Fatal(err)
		}
		if got != seq {
			t.Fatalf("got %d, want %d", got, seq)
		}
	}
	if _, err := seqFromKey([]byte("CYC12")); err == nil {
		t.Fatal("short key must fail")
	}
	if _, err := seqFromKey(append([]byte("XYZ"), keyFromSeq(1)[3:]...)); err == nil {
		t.Fatal("foreign prefix must fail")
	}
	if string(keyFromSeq(255)) != "CYC00000000000000ff" {
		t.Fatalf("key = %s", keyFromSeq(255))
	}
}

func TestJournalCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "masterclock", "journal")

	j, err := NewJournal(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if j.Path() != path {
		t.Fatalf("path = %s", j.Path())
	}
	if _, err := j.Append(testReport("a", 0)); err != nil {
		t.Fatal(err)
	}

	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
