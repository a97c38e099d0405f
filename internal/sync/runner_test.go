package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/gateway"
)

func newTestRunner(gw *fakeGateway, sink *fakeSink, repo *fakeRepo) *Runner {
	reg := gateway.NewRegistry(map[sources.Kind]gateway.Gateway{
		sources.KindHTTPIndex: gw,
	})
	return NewRunner(reg, sink, repo, zerolog.Nop())
}

func TestRunFirstPullAdvancesThroughEverything(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1", "a.jpg", "b.jpg", "c.jpg")
	sink := newFakeSink()
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, sink, repo).Run(context.Background(), src, 10)

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if outcome.Candidates != 3 || outcome.Fetched != 3 || outcome.Ingested != 3 || outcome.Failed != 0 {
		t.Errorf("outcome = %+v", outcome)
	}
	if got := repo.cursorOf("src-1"); got != "c.jpg" {
		t.Errorf("cursor = %q, want c.jpg", got)
	}
	if repo.lastPulledOf("src-1") == nil {
		t.Error("last pulled timestamp not set")
	}
}

func TestRunRespectsMaxFiles(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1",
		"01.jpg", "02.jpg", "03.jpg", "04.jpg", "05.jpg",
		"06.jpg", "07.jpg", "08.jpg", "09.jpg", "10.jpg")
	sink := newFakeSink()
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, sink, repo).Run(context.Background(), src, 2)

	if outcome.Candidates != 10 {
		t.Errorf("candidates = %d, want 10", outcome.Candidates)
	}
	if outcome.Fetched != 2 || outcome.Ingested != 2 {
		t.Errorf("fetched/ingested = %d/%d, want 2/2", outcome.Fetched, outcome.Ingested)
	}
	if got := repo.cursorOf("src-1"); got != "02.jpg" {
		t.Errorf("cursor = %q, want 02.jpg (processed prefix only)", got)
	}
}

func TestRunContiguousSuccessRule(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1", "a.jpg", "b.jpg", "c.jpg")
	sink := newFakeSink()
	sink.rejected["b.jpg"] = "not a decodable image"
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, sink, repo).Run(context.Background(), src, 10)

	if outcome.Ingested != 2 || outcome.Failed != 1 {
		t.Errorf("ingested/failed = %d/%d, want 2/1", outcome.Ingested, outcome.Failed)
	}
	// c.jpg was ingested, but the cursor must stop at a.jpg so b.jpg is
	// retried next sweep.
	if got := repo.cursorOf("src-1"); got != "a.jpg" {
		t.Errorf("cursor = %q, want a.jpg", got)
	}
}

func TestRunFetchFailureDoesNotAbortRun(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1", "a.jpg", "b.jpg", "c.jpg")
	gw.fetchErr["a.jpg"] = &gateway.FetchError{SourceID: "src-1", Filename: "a.jpg", Status: 404}
	sink := newFakeSink()
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, sink, repo).Run(context.Background(), src, 10)

	if outcome.Failed != 1 || outcome.Ingested != 2 {
		t.Errorf("failed/ingested = %d/%d, want 1/2", outcome.Failed, outcome.Ingested)
	}
	if gw.fetchCount() != 3 {
		t.Errorf("fetches = %d, want 3 (run continues past a failed file)", gw.fetchCount())
	}
	// Nothing before a.jpg succeeded, so the cursor must stay unset.
	if got := repo.cursorOf("src-1"); got != "" {
		t.Errorf("cursor = %q, want unset", got)
	}
}

func TestRunListingFailureLeavesCursorUntouched(t *testing.T) {
	src := testSrc("src-1", "backyard", "z.jpg")
	gw := newFakeGateway()
	gw.listErr["src-1"] = &gateway.ListingError{SourceID: "src-1", Status: 503, Reason: "unexpected status"}
	sink := newFakeSink()
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, sink, repo).Run(context.Background(), src, 10)

	if outcome.Err == nil {
		t.Fatal("expected listing error in outcome")
	}
	if outcome.Fetched != 0 || outcome.Ingested != 0 {
		t.Errorf("no files should be processed after a listing failure: %+v", outcome)
	}
	if got := repo.cursorOf("src-1"); got != "z.jpg" {
		t.Errorf("cursor = %q, want z.jpg (unchanged)", got)
	}
	if repo.lastPulledOf("src-1") != nil {
		t.Error("last pulled timestamp must not move on a failed run")
	}
}

func TestRunAuthErrorSurfacedDistinctly(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.listErr["src-1"] = &gateway.AuthError{SourceID: "src-1", Status: 401}
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, newFakeSink(), repo).Run(context.Background(), src, 10)

	var authErr *gateway.AuthError
	if !errors.As(outcome.Err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", outcome.Err, outcome.Err)
	}
}

func TestRunSecondSweepIsNoOp(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1", "a.jpg", "b.jpg")
	sink := newFakeSink()
	repo := newFakeRepo(src)
	runner := newTestRunner(gw, sink, repo)

	first := runner.Run(context.Background(), src, 10)
	if first.Ingested != 2 {
		t.Fatalf("first run ingested %d, want 2", first.Ingested)
	}

	// Reload the source so the second run sees the committed cursor.
	reloaded, err := repo.Get(context.Background(), "src-1")
	if err != nil {
		t.Fatal(err)
	}
	second := runner.Run(context.Background(), *reloaded, 10)

	if second.Candidates != 0 || second.Fetched != 0 || second.Ingested != 0 {
		t.Errorf("second run should be a no-op: %+v", second)
	}
	if got := repo.cursorOf("src-1"); got != "b.jpg" {
		t.Errorf("cursor = %q, want b.jpg (unchanged)", got)
	}
}

func TestRunRotatedListingRescansFromStart(t *testing.T) {
	// Cursor names a file the provider has deleted; the whole current
	// listing is new again. The sink's idempotency makes that safe.
	src := testSrc("src-1", "backyard", "old-gone.jpg")
	gw := newFakeGateway()
	gw.setListing("src-1", "new1.jpg", "new2.jpg")
	sink := newFakeSink()
	repo := newFakeRepo(src)

	outcome := newTestRunner(gw, sink, repo).Run(context.Background(), src, 10)

	if outcome.Candidates != 2 || outcome.Ingested != 2 {
		t.Errorf("outcome = %+v, want full re-scan", outcome)
	}
	if got := repo.cursorOf("src-1"); got != "new2.jpg" {
		t.Errorf("cursor = %q, want new2.jpg", got)
	}
}

func TestRunCommitFailureSurfaces(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1", "a.jpg")
	repo := newFakeRepo(src)
	repo.updateErr = errors.New("connection reset")

	outcome := newTestRunner(gw, newFakeSink(), repo).Run(context.Background(), src, 10)

	if outcome.Err == nil {
		t.Fatal("commit failure must surface in the outcome")
	}
}

func TestRunProcessesInListingOrder(t *testing.T) {
	src := testSrc("src-1", "backyard", "")
	gw := newFakeGateway()
	gw.setListing("src-1", "c.jpg", "a.jpg", "b.jpg")
	sink := newFakeSink()
	repo := newFakeRepo(src)

	newTestRunner(gw, sink, repo).Run(context.Background(), src, 10)

	want := []string{"src-1/c.jpg", "src-1/a.jpg", "src-1/b.jpg"}
	if len(gw.fetches) != 3 {
		t.Fatalf("fetches = %v", gw.fetches)
	}
	for i := range want {
		if gw.fetches[i] != want[i] {
			t.Errorf("fetch order = %v, want %v", gw.fetches, want)
			break
		}
	}
	// Listing order wins even when it is not lexicographic.
	if got := repo.cursorOf("src-1"); got != "b.jpg" {
		t.Errorf("cursor = %q, want b.jpg", got)
	}
}
