package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/mutate"
	"github.com/mindhub/mindlink/internal/ooxml"
	"github.com/mindhub/mindlink/internal/ooxml/ooxmltest"
	"github.com/mindhub/mindlink/internal/storage"
)

type countingRefresher struct {
	mu    sync.Mutex
	files []string
	err   error
}

func (r *countingRefresher) RefreshFile(ctx context.Context, f *drive.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, f.ID)
	return r.err
}

type fixture struct {
	root      string
	drive     *drive.LocalDrive
	store     *storage.SQLiteStorage
	refresher *countingRefresher
	editor    *Editor
	manualID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "drive")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "RH"), 0755))
	manual := filepath.Join(root, "RH", "Manual.docx")
	require.NoError(t, os.WriteFile(manual, ooxmltest.Docx("Vale refeição: R$ 30,00", "Contato: rh@mindhub.com"), 0644))

	d, err := drive.NewLocalDrive(root, "empresa", nil)
	require.NoError(t, err)
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	id, err := d.IDForPath(manual)
	require.NoError(t, err)
	require.NoError(t, store.UpsertDocument(context.Background(), &models.Document{
		ID: id, Name: "Manual.docx", Path: "empresa/RH", Sector: "RH", Origin: "local",
	}))

	r := &countingRefresher{}
	e := New(d, store, store, Options{Enabled: true, AllowedRoles: []models.Role{models.RoleAdmin}},
		WithRefresher(r), WithLogger(zap.NewNop()))
	return &fixture{root: root, drive: d, store: store, refresher: r, editor: e, manualID: id}
}

func (fx *fixture) paragraphs(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fx.root, "RH", "Manual.docx"))
	require.NoError(t, err)
	pkg, err := ooxml.Open(data)
	require.NoError(t, err)
	doc, err := pkg.Document()
	require.NoError(t, err)
	texts, err := ooxml.Paragraphs(doc)
	require.NoError(t, err)
	return texts
}

func (fx *fixture) edits(t *testing.T) []*models.EditRecord {
	t.Helper()
	recs, err := fx.store.ListEdits(context.Background(), 0, 100)
	require.NoError(t, err)
	return recs
}

func TestApply_SuggestionBlock(t *testing.T) {
	fx := newFixture(t)
	block := fmt.Sprintf(`Claro! Segue a sugestão.
[SUGESTÃO DE EDIÇÃO]
Arquivo: Manual.docx
ID: %s
Alteração: [AÇÃO: SUBSTITUIR | DE: "R$ 30,00" | PARA: "R$ 35,00"]
[FIM DA SUGESTÃO]`, fx.manualID)

	out, err := fx.editor.Apply(context.Background(), Request{Instruction: block, User: "admin@mindhub.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, fx.manualID, out.FileID)
	assert.Equal(t, 1, out.Result.Changes)
	assert.True(t, out.Reindexed)
	assert.Equal(t, []string{"Vale refeição: R$ 35,00", "Contato: rh@mindhub.com"}, fx.paragraphs(t))
	assert.Equal(t, []string{fx.manualID}, fx.refresher.files)

	recs := fx.edits(t)
	require.Len(t, recs, 1)
	assert.Equal(t, models.EditApplied, recs[0].Status)
	assert.Equal(t, "admin@mindhub.com", recs[0].UserEmail)
	assert.Equal(t, "SUBSTITUIR", recs[0].Action)
}

func TestApply_NoMatchLeavesFileUntouched(t *testing.T) {
	fx := newFixture(t)
	before, err := os.ReadFile(filepath.Join(fx.root, "RH", "Manual.docx"))
	require.NoError(t, err)

	_, err = fx.editor.Apply(context.Background(), Request{
		FileID:      fx.manualID,
		Instruction: `[AÇÃO: SUBSTITUIR | DE: "R$ 99,00" | PARA: "R$ 1,00"]`,
		Role:        models.RoleAdmin,
	})
	require.ErrorIs(t, err, mutate.ErrNoMatch)

	after, err := os.ReadFile(filepath.Join(fx.root, "RH", "Manual.docx"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, fx.refresher.files)

	recs := fx.edits(t)
	require.Len(t, recs, 1)
	assert.Equal(t, models.EditNoMatch, recs[0].Status)
}

func TestApply_ResolvesByNameWhenIDIsUnknown(t *testing.T) {
	fx := newFixture(t)
	block := `[SUGESTÃO DE EDIÇÃO]
Arquivo: **manual.docx**
ID: 1AbCdEf
Alteração: [AÇÃO: ADICIONAR]
Conteúdo:
'''
Novo parágrafo
'''
[FIM DA SUGESTÃO]`
	out, err := fx.editor.Apply(context.Background(), Request{Instruction: block, Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, fx.manualID, out.FileID)
	assert.Equal(t, "Novo parágrafo", fx.paragraphs(t)[2])
}

func TestApply_ResolveErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.editor.Apply(ctx, Request{FileName: "Outro.docx", Instruction: `[AÇÃO: LIMPAR]`, Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = fx.editor.Apply(ctx, Request{Instruction: `[AÇÃO: LIMPAR]`, Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, fx.store.UpsertDocument(ctx, &models.Document{ID: "local:Financeiro/Manual.docx", Name: "Manual.docx"}))
	_, err = fx.editor.Apply(ctx, Request{FileName: "Manual.docx", Instruction: `[AÇÃO: LIMPAR]`, Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrAmbiguousFile)

	_, err = fx.editor.Apply(ctx, Request{FileID: fx.manualID, Instruction: "sem comando", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, command.ErrNoCommand)

	var se *command.SyntaxError
	_, err = fx.editor.Apply(ctx, Request{FileID: fx.manualID, Instruction: `[AÇÃO: SUBSTITUIR | DE: "x]`, Role: models.RoleAdmin})
	assert.True(t, errors.As(err, &se), "got %v", err)

	assert.Empty(t, fx.edits(t), "unresolved requests are not logged")
}

func TestApply_Permissions(t *testing.T) {
	fx := newFixture(t)
	req := Request{FileID: fx.manualID, Instruction: `[AÇÃO: LIMPAR]`, Role: models.RoleStudent}
	_, err := fx.editor.Apply(context.Background(), req)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, fx.editor.Allowed(models.RoleStudent))
	assert.True(t, fx.editor.Allowed(models.RoleAdmin))

	disabled := New(fx.drive, fx.store, fx.store, Options{AllowedRoles: []models.Role{models.RoleAdmin}})
	req.Role = models.RoleAdmin
	_, err = disabled.Apply(context.Background(), req)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, disabled.Allowed(models.RoleAdmin))
}

func TestApply_ReindexFailureIsNotFatal(t *testing.T) {
	fx := newFixture(t)
	fx.refresher.err = errors.New("embedder down")
	out, err := fx.editor.Apply(context.Background(), Request{
		FileID: fx.manualID, Instruction: `[AÇÃO: TOPO | CONTEÚDO: "Revisado"]`, Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.False(t, out.Reindexed)
	assert.Equal(t, "Revisado", fx.paragraphs(t)[0])
}

func TestApply_ConcurrentEditsOfSameFile(t *testing.T) {
	fx := newFixture(t)
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fx.editor.Apply(context.Background(), Request{
				FileID:      fx.manualID,
				Instruction: fmt.Sprintf(`[AÇÃO: ADICIONAR | CONTEÚDO: "linha %d"]`, i),
				Role:        models.RoleAdmin,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, fx.paragraphs(t), 2+n)
	fx.editor.mu.Lock()
	assert.Empty(t, fx.editor.locks, "file locks are released after use")
	fx.editor.mu.Unlock()
}

func TestLock_EntriesAreDroppedWhenReleased(t *testing.T) {
	e := &Editor{locks: make(map[string]*fileLock)}
	for i := 0; i < 100; i++ {
		e.lock(fmt.Sprintf("local:file-%d.docx", i))()
	}
	assert.Empty(t, e.locks)

	unlock := e.lock("a")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		e.lock("a")()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked file")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Empty(t, e.locks)
}
