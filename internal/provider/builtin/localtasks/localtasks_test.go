package localtasks

import (
	"context"
	"testing"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLists() []List {
	return []List{
		{Slug: "inbox", Name: "Inbox", Tasks: []Task{
			{LocalID: "buy-milk", Body: "Buy milk"},
			{LocalID: "walk-dog", Body: "Walk the dog"},
		}},
	}
}

func TestListCollections(t *testing.T) {
	p := New("localtasks", testLists())
	cols, err := p.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, model.NewCollectionID("localtasks", "inbox"), cols[0].ID)
	assert.True(t, cols[0].IsEditable)
	assert.Equal(t, 2, cols[0].ItemCount)
}

func TestGetCollectionItemsUnknownCollection(t *testing.T) {
	p := New("localtasks", testLists())
	_, err := p.GetCollectionItems(context.Background(), model.NewCollectionID("localtasks", "ghost"))
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrKindNotSupported, perr.Kind)
}

func TestAddAndRemoveFromCollection(t *testing.T) {
	p := New("localtasks", testLists())
	colID := model.NewCollectionID("localtasks", "inbox")

	require.NoError(t, p.AddToCollection(context.Background(), colID, model.NewItemID("localtasks", "new-task")))
	items, err := p.GetCollectionItems(context.Background(), colID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	// Adding the same item again is idempotent.
	require.NoError(t, p.AddToCollection(context.Background(), colID, model.NewItemID("localtasks", "new-task")))
	items, err = p.GetCollectionItems(context.Background(), colID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	require.NoError(t, p.RemoveFromCollection(context.Background(), colID, model.NewItemID("localtasks", "new-task")))
	items, err = p.GetCollectionItems(context.Background(), colID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCreateCollection(t *testing.T) {
	p := New("localtasks", testLists())
	col, err := p.CreateCollection(context.Background(), "Shopping")
	require.NoError(t, err)
	assert.Equal(t, "Shopping", col.Name)
	assert.True(t, col.IsEditable)

	cols, err := p.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Len(t, cols, 2)
}

func TestCompleteAndUncompleteTask(t *testing.T) {
	p := New("localtasks", testLists())
	colID := model.NewCollectionID("localtasks", "inbox")
	taskID := model.NewItemID("localtasks", "buy-milk")

	require.NoError(t, p.CompleteTask(context.Background(), taskID))
	items, err := p.GetCollectionItems(context.Background(), colID)
	require.NoError(t, err)
	content := findItem(t, items, taskID).Content.(model.TaskContent)
	assert.True(t, content.IsCompleted)

	require.NoError(t, p.UncompleteTask(context.Background(), taskID))
	items, err = p.GetCollectionItems(context.Background(), colID)
	require.NoError(t, err)
	content = findItem(t, items, taskID).Content.(model.TaskContent)
	assert.False(t, content.IsCompleted)
}

func TestAvailableActionsTogglesOnCompletion(t *testing.T) {
	p := New("localtasks", testLists())
	item := model.Item{ID: model.NewItemID("localtasks", "buy-milk"), Content: model.TaskContent{IsCompleted: false}}

	actions, err := p.AvailableActions(context.Background(), item)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, provider.ActionMarkRead, actions[0].Kind)

	item.Content = model.TaskContent{IsCompleted: true}
	actions, err = p.AvailableActions(context.Background(), item)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, provider.ActionMarkUnread, actions[0].Kind)
}

func TestAvailableActionsArchivedItemHasNone(t *testing.T) {
	p := New("localtasks", testLists())
	actions, err := p.AvailableActions(context.Background(), model.Item{IsArchived: true})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestExecuteActionDelegatesToTaskCompletion(t *testing.T) {
	p := New("localtasks", testLists())
	taskID := model.NewItemID("localtasks", "buy-milk")

	_, err := p.ExecuteAction(context.Background(), model.Item{ID: taskID}, provider.Action{Kind: provider.ActionMarkRead})
	require.NoError(t, err)

	items, err := p.GetCollectionItems(context.Background(), model.NewCollectionID("localtasks", "inbox"))
	require.NoError(t, err)
	content := findItem(t, items, taskID).Content.(model.TaskContent)
	assert.True(t, content.IsCompleted)
}

func findItem(t *testing.T, items []model.Item, id model.ItemID) model.Item {
	t.Helper()
	for _, it := range items {
		if it.ID == id {
			return it
		}
	}
	t.Fatalf("item %q not found", id)
	return model.Item{}
}
