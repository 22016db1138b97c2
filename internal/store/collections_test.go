package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/store"
	"ledger/internal/store/memory"
)

func TestCollections_CorruptBlobIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKV()
	require.NoError(t, kv.Set(ctx, store.KeyProjects, []byte("{not json")))
	require.NoError(t, kv.Set(ctx, store.KeyUsers, []byte("null")))

	c := store.NewCollections(kv, nil)

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	// A write after corruption replaces the blob with a valid collection.
	require.NoError(t, c.UpsertProject(ctx, core.Project{ID: "1", Name: "Recovered"}))
	projects, err = c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Recovered", projects[0].Name)
}

func TestCollections_BlobFormat(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKV()
	c := store.NewCollections(kv, nil)

	require.NoError(t, c.SaveUser(ctx, core.User{Username: "admin", Password: "admin123", Role: core.RoleAdmin}))

	raw, err := kv.Get(ctx, store.KeyUsers)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"username":"admin","password":"admin123","role":"ADMIN"}]`, string(raw))
}

func TestCollections_ReadsOriginalAttachmentShape(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKV()
	legacy := `[
	  {"id":"1","name":"Dhaka Depot","startDate":"2024-01-10","endDate":"","budgetAmount":1000,
	   "advanceAmount":400,"expenseAmount":300,"balanceAmount":300,"isSettled":false,
	   "billSubmissionDate":"","sopRoiEmailSubmissionDate":"",
	   "billTopSheetImage":{"type":"image/png","data":"data:image/png;base64,iVBORw0KGgo="},
	   "createdAt":"2024-01-15T09:00:00.000Z"},
	  {"id":"2","name":"Chittagong Port","startDate":"2024-02-01","endDate":"2024-02-28","budgetAmount":500,
	   "advanceAmount":500,"expenseAmount":500,"balanceAmount":-500,"isSettled":true,
	   "billSubmissionDate":"","sopRoiEmailSubmissionDate":"",
	   "budgetCopyAttachment":{"type":"application/pdf","data":"data:application/pdf;base64,JVBERi0="},
	   "createdAt":"2024-02-10T09:00:00.000Z"}
	]`
	require.NoError(t, kv.Set(ctx, store.KeyProjects, []byte(legacy)))

	c := store.NewCollections(kv, nil)
	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	img := projects[0].BillTopSheetImage
	require.NotNil(t, img)
	assert.Equal(t, core.AttachmentImage, img.Kind)
	assert.Equal(t, "image/png", img.Type)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), img.Data)
	assert.Equal(t, 8, img.Size)

	doc := projects[1].BudgetCopyAttachment
	require.NotNil(t, doc)
	assert.Equal(t, core.AttachmentDocument, doc.Kind)
	assert.Equal(t, []byte("%PDF-"), doc.Data)

	// Writing a new record keeps the legacy ones.
	require.NoError(t, c.UpsertProject(ctx, core.Project{ID: "3", Name: "Sylhet Office"}))
	projects, err = c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	require.NotNil(t, projects[0].BillTopSheetImage)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), projects[0].BillTopSheetImage.Data)
}

func TestCollections_UndecodableLegacyAttachmentKeepsRecord(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKV()
	legacy := `[{"id":"1","name":"Depot","startDate":"2024-01-10","createdAt":"2024-01-15T09:00:00Z",
	  "billTopSheetImage":{"type":"image/png","data":"data:image/png;base64,%%%"}}]`
	require.NoError(t, kv.Set(ctx, store.KeyProjects, []byte(legacy)))

	projects, err := store.NewCollections(kv, nil).ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.NotNil(t, projects[0].BillTopSheetImage)
	assert.Empty(t, projects[0].BillTopSheetImage.Data)
	assert.Equal(t, core.AttachmentImage, projects[0].BillTopSheetImage.Kind)
}
