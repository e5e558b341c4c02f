package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"NoteFlow/backend/go/internal/database/milvus"
	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/pkg/logger"
)

// --- fakes ---

type fakeCompleter struct {
	response string
	err      error
	gotInput string
	calls    int
}

func (f *fakeCompleter) Complete(_ context.Context, _, input string) (string, error) {
	f.calls++
	f.gotInput = input
	return f.response, f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

type fakeIndex struct {
	upsertErr  error
	deleteErr  error
	upserted   []string
	payloads   []milvus.VectorPayload
	deletedIDs []string
}

func (f *fakeIndex) Upsert(_ context.Context, vectorID string, _ []float32, payload milvus.VectorPayload) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, vectorID)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeIndex) DeleteByVectorID(_ context.Context, vectorID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, vectorID)
	return nil
}

// fakeStore implements the Store interface in memory.
type fakeStore struct {
	notes      map[uint]*models.Note
	categories map[string]*models.Category // keyed by name, single owner in tests
	nextCatID  uint

	updateErr error
	createErr error

	// statusWrites records every MarkAnalysisStatus call in order.
	statusWrites []models.AIAnalysisStatus
	// analysisWrites records every UpdateNoteAnalysis call.
	analysisWrites []analysisWrite

	// duplicateOnCreate makes the first CreateCategory call fail as if a
	// concurrent worker had just inserted the same name.
	duplicateOnCreate bool
}

type analysisWrite struct {
	noteID       uint
	keywords     []string
	categoryID   *uint
	categoryName *string
	vectorID     string
	status       models.AIAnalysisStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notes:      make(map[uint]*models.Note),
		categories: make(map[string]*models.Category),
		nextCatID:  1,
	}
}

func (f *fakeStore) GetNoteByID(noteID uint) (*models.Note, error) {
	return f.notes[noteID], nil
}

// seedPending registers a pending note so a first-delivery task is processed.
func (f *fakeStore) seedPending(noteID uint) *models.Note {
	note := &models.Note{AIAnalysisStatus: models.AnalysisPending}
	note.ID = noteID
	f.notes[noteID] = note
	return note
}

func (f *fakeStore) UpdateNoteAnalysis(noteID uint, keywords []string, categoryID *uint, categoryName *string, vectorID string, status models.AIAnalysisStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.analysisWrites = append(f.analysisWrites, analysisWrite{
		noteID:       noteID,
		keywords:     keywords,
		categoryID:   categoryID,
		categoryName: categoryName,
		vectorID:     vectorID,
		status:       status,
	})
	return nil
}

func (f *fakeStore) MarkAnalysisStatus(noteID uint, status models.AIAnalysisStatus) error {
	f.statusWrites = append(f.statusWrites, status)
	return nil
}

func (f *fakeStore) FindCategoryByName(_ uint, name string) (*models.Category, error) {
	return f.categories[name], nil
}

func (f *fakeStore) CreateCategory(ownerID uint, name string) (*models.Category, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.duplicateOnCreate {
		// Simulate losing the unique-index race: the row exists by the time
		// our insert lands.
		f.duplicateOnCreate = false
		f.categories[name] = &models.Category{UserID: ownerID, Name: name}
		f.categories[name].ID = f.nextCatID
		f.nextCatID++
		return nil, ErrDuplicateCategory
	}
	category := &models.Category{UserID: ownerID, Name: name}
	category.ID = f.nextCatID
	f.nextCatID++
	f.categories[name] = category
	return category, nil
}

func newTestPipeline(llm Completer, emb Embedder, idx VectorIndex, st Store) *Pipeline {
	return NewPipeline(llm, emb, idx, st, logger.New("test", "", ""))
}

func task(noteID uint) models.AnalysisTask {
	return models.AnalysisTask{
		NoteID: noteID,
		UserID: 7,
		Text:   "Buy milk and eggs from the store",
	}
}

// --- tests ---

func TestProcessHappyPath(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["milk","eggs","groceries"],"categoryName":"Shopping"}`}
	emb := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	idx := &fakeIndex{}
	st := newFakeStore()
	st.seedPending(1)

	outcome := newTestPipeline(llm, emb, idx, st).Process(context.Background(), task(1))

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s (%v)", outcome.Kind, outcome.Err)
	}
	if llm.gotInput != "Buy milk and eggs from the store" {
		t.Errorf("note text not passed to LLM, got %q", llm.gotInput)
	}
	if len(idx.upserted) != 1 {
		t.Fatalf("expected 1 vector upsert, got %d", len(idx.upserted))
	}
	if idx.payloads[0].NoteID != 1 || idx.payloads[0].OwnerID != 7 {
		t.Errorf("vector payload mismatch: %+v", idx.payloads[0])
	}

	if len(st.analysisWrites) != 1 {
		t.Fatalf("expected 1 analysis write, got %d", len(st.analysisWrites))
	}
	write := st.analysisWrites[0]
	if write.status != models.AnalysisCompleted {
		t.Errorf("expected completed status, got %s", write.status)
	}
	if strings.Join(write.keywords, ",") != "milk,eggs,groceries" {
		t.Errorf("unexpected keywords: %v", write.keywords)
	}
	if write.categoryName == nil || *write.categoryName != "Shopping" {
		t.Errorf("expected category name Shopping, got %v", write.categoryName)
	}
	if write.categoryID == nil {
		t.Fatal("expected a category to be created and linked")
	}
	if write.vectorID != idx.upserted[0] {
		t.Errorf("persisted vectorID %q does not match upserted %q", write.vectorID, idx.upserted[0])
	}
	if len(st.statusWrites) != 0 {
		t.Errorf("happy path should not touch MarkAnalysisStatus, got %v", st.statusWrites)
	}
}

func TestProcessProviderFailureMarksFailed(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("connection refused")}
	st := newFakeStore()
	st.seedPending(2)
	idx := &fakeIndex{}

	outcome := newTestPipeline(llm, &fakeEmbedder{}, idx, st).Process(context.Background(), task(2))

	if outcome.Kind != OutcomeProviderFailure {
		t.Fatalf("expected provider failure, got %s", outcome.Kind)
	}
	// The note must reach failed with no partial writes.
	if len(st.statusWrites) != 1 || st.statusWrites[0] != models.AnalysisFailed {
		t.Errorf("expected a single failed status write, got %v", st.statusWrites)
	}
	if len(st.analysisWrites) != 0 {
		t.Errorf("no analysis fields may be written on failure, got %v", st.analysisWrites)
	}
	if len(idx.upserted) != 0 {
		t.Errorf("no vector may be upserted on failure, got %v", idx.upserted)
	}
}

func TestProcessParseFailure(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"empty response", ""},
		{"not json", "I cannot help with that."},
		{"missing fields", `{"something":"else"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &fakeCompleter{response: tc.response}
			st := newFakeStore()
			st.seedPending(3)

			outcome := newTestPipeline(llm, &fakeEmbedder{}, &fakeIndex{}, st).Process(context.Background(), task(3))

			if outcome.Kind != OutcomeParseFailure {
				t.Fatalf("expected parse failure, got %s (%v)", outcome.Kind, outcome.Err)
			}
			if !errors.Is(outcome.Err, ErrParse) {
				t.Errorf("expected ErrParse in chain, got %v", outcome.Err)
			}
			if len(st.statusWrites) != 1 || st.statusWrites[0] != models.AnalysisFailed {
				t.Errorf("expected failed status write, got %v", st.statusWrites)
			}
		})
	}
}

func TestProcessKeywordsOnlyResponseIsAccepted(t *testing.T) {
	// categoryName may be empty as long as keywords are present.
	llm := &fakeCompleter{response: `{"keywords":["solo"]}`}
	st := newFakeStore()
	st.seedPending(4)

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, st).Process(context.Background(), task(4))

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%v)", outcome.Kind, outcome.Err)
	}
	write := st.analysisWrites[0]
	if write.categoryID != nil || write.categoryName != nil {
		t.Errorf("no category expected, got id=%v name=%v", write.categoryID, write.categoryName)
	}
}

func TestProcessExplicitCategoryWins(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"Inferred"}`}
	st := newFakeStore()
	st.seedPending(5)

	tk := task(5)
	tk.ExplicitCategoryID = 42

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, st).Process(context.Background(), tk)

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%v)", outcome.Kind, outcome.Err)
	}
	write := st.analysisWrites[0]
	if write.categoryID == nil || *write.categoryID != 42 {
		t.Errorf("explicit category must be kept, got %v", write.categoryID)
	}
	// The inferred name is stored for display but no category row is created.
	if len(st.categories) != 0 {
		t.Errorf("no category may be created when an explicit one is set, got %v", st.categories)
	}
	if write.categoryName == nil || *write.categoryName != "Inferred" {
		t.Errorf("inferred name should still be stored, got %v", write.categoryName)
	}
}

func TestProcessEmbedFailureLeavesNoVector(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
	emb := &fakeEmbedder{err: errors.New("model overloaded")}
	idx := &fakeIndex{}
	st := newFakeStore()
	st.seedPending(6)

	outcome := newTestPipeline(llm, emb, idx, st).Process(context.Background(), task(6))

	if outcome.Kind != OutcomeProviderFailure {
		t.Fatalf("expected provider failure, got %s", outcome.Kind)
	}
	if len(idx.upserted) != 0 {
		t.Errorf("no vector may be written, got %v", idx.upserted)
	}
	if len(st.analysisWrites) != 0 {
		t.Errorf("no analysis fields may be written, got %v", st.analysisWrites)
	}
}

func TestProcessUpsertFailure(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
	idx := &fakeIndex{upsertErr: errors.New("milvus unavailable")}
	st := newFakeStore()
	st.seedPending(7)

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, idx, st).Process(context.Background(), task(7))

	if outcome.Kind != OutcomeProviderFailure {
		t.Fatalf("expected provider failure, got %s", outcome.Kind)
	}
	if len(st.analysisWrites) != 0 {
		t.Errorf("vectorID must stay unset when indexing fails, got %v", st.analysisWrites)
	}
}

func TestProcessStoreFailure(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
	st := newFakeStore()
	st.seedPending(8)
	st.updateErr = errors.New("deadlock")

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, st).Process(context.Background(), task(8))

	if outcome.Kind != OutcomeStoreFailure {
		t.Fatalf("expected store failure, got %s", outcome.Kind)
	}
	if len(st.statusWrites) != 1 || st.statusWrites[0] != models.AnalysisFailed {
		t.Errorf("expected failed status write, got %v", st.statusWrites)
	}
}

func TestResolveCategoryReusesExisting(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"Work"}`}
	st := newFakeStore()
	st.seedPending(9)
	existing := &models.Category{UserID: 7, Name: "Work"}
	existing.ID = 99
	st.categories["Work"] = existing

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, st).Process(context.Background(), task(9))

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%v)", outcome.Kind, outcome.Err)
	}
	write := st.analysisWrites[0]
	if write.categoryID == nil || *write.categoryID != 99 {
		t.Errorf("existing category must be reused, got %v", write.categoryID)
	}
}

func TestResolveCategoryDuplicateRaceRereadsWinner(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"Race"}`}
	st := newFakeStore()
	st.seedPending(10)
	st.duplicateOnCreate = true

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, st).Process(context.Background(), task(10))

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("losing the create race must not fail the run, got %s (%v)", outcome.Kind, outcome.Err)
	}
	write := st.analysisWrites[0]
	winner := st.categories["Race"]
	if write.categoryID == nil || *write.categoryID != winner.ID {
		t.Errorf("must link the winning row %d, got %v", winner.ID, write.categoryID)
	}
}

func TestRetryCleansUpStaleVector(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
	idx := &fakeIndex{}
	st := newFakeStore()

	oldVectorID := "old-vector-id"
	note := &models.Note{VectorID: &oldVectorID}
	note.ID = 11
	st.notes[11] = note

	tk := task(11)
	tk.Retry = true

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, idx, st).Process(context.Background(), tk)

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%v)", outcome.Kind, outcome.Err)
	}
	if len(idx.deletedIDs) != 1 || idx.deletedIDs[0] != oldVectorID {
		t.Errorf("stale vector must be deleted, got %v", idx.deletedIDs)
	}
	if len(idx.upserted) != 1 || idx.upserted[0] == oldVectorID {
		t.Errorf("retry must insert under a fresh vectorID, got %v", idx.upserted)
	}
}

func TestRetryCleanupFailureIsNotFatal(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
	idx := &fakeIndex{deleteErr: errors.New("delete timeout")}
	st := newFakeStore()

	oldVectorID := "stuck-vector"
	note := &models.Note{VectorID: &oldVectorID}
	note.ID = 12
	st.notes[12] = note

	tk := task(12)
	tk.Retry = true

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, idx, st).Process(context.Background(), tk)

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("cleanup failure must not abort the run, got %s (%v)", outcome.Kind, outcome.Err)
	}
}

func TestProcessSkipsRedeliveredTerminalTask(t *testing.T) {
	// At-least-once delivery: a crash between processing and the offset
	// commit redelivers the task. A note already in a terminal state must
	// not transition again.
	for _, status := range []models.AIAnalysisStatus{models.AnalysisCompleted, models.AnalysisFailed} {
		t.Run(string(status), func(t *testing.T) {
			llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
			idx := &fakeIndex{}
			st := newFakeStore()
			note := st.seedPending(13)
			note.AIAnalysisStatus = status

			outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, idx, st).Process(context.Background(), task(13))

			if outcome.Kind != OutcomeSkipped {
				t.Fatalf("expected skipped, got %s (%v)", outcome.Kind, outcome.Err)
			}
			if llm.calls != 0 {
				t.Errorf("LLM must not be called for a terminal note, got %d calls", llm.calls)
			}
			if len(idx.upserted) != 0 {
				t.Errorf("no vector may be written, got %v", idx.upserted)
			}
			if len(st.analysisWrites) != 0 || len(st.statusWrites) != 0 {
				t.Errorf("terminal note must not be touched, writes=%v statuses=%v", st.analysisWrites, st.statusWrites)
			}
		})
	}
}

func TestProcessSkipsDeletedNote(t *testing.T) {
	llm := &fakeCompleter{response: `{"keywords":["a"],"categoryName":"C"}`}
	idx := &fakeIndex{}
	st := newFakeStore() // note 14 never existed / already deleted

	outcome := newTestPipeline(llm, &fakeEmbedder{vector: []float32{1}}, idx, st).Process(context.Background(), task(14))

	if outcome.Kind != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s (%v)", outcome.Kind, outcome.Err)
	}
	if llm.calls != 0 || len(idx.upserted) != 0 {
		t.Errorf("deleted note must not produce provider calls or vectors, calls=%d upserts=%v", llm.calls, idx.upserted)
	}
}

func TestParseAnalysisNormalizesNilKeywords(t *testing.T) {
	result, err := parseAnalysis(`{"categoryName":"Only"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Keywords == nil {
		t.Error("keywords must be normalized to an empty slice")
	}
	if result.CategoryName != "Only" {
		t.Errorf("unexpected category name: %s", result.CategoryName)
	}
}
