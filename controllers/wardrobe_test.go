package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"tryonapi/models"
	"tryonapi/tasks"
	"tryonapi/test"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddWardrobeItem(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")

	rec := env.serve(test.NewJSONAuthRequest(http.MethodPost, "/api/wardrobe", testSubject, models.WardrobeItemIn{
		Name:        "Denim jacket",
		Category:    "outerwear",
		Description: "blue denim jacket",
		Image:       jacketPhoto,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out models.WardrobeItemOut
	decodeBody(t, rec, &out)
	assert.Equal(t, "Denim jacket", out.Name)
	assert.Equal(t, models.StatusIdle, out.ProcessingStatus)
	assert.True(t, strings.HasPrefix(out.ImageURL, "https://cache.test/uploads/user-1/"), out.ImageURL)

	stored := env.wardrobe.Items[out.ID]
	require.NotNil(t, stored)
	assert.Equal(t, testSubject, stored.OwnerSubject)
	_, ok := env.storage.Object(stored.ImageKey)
	assert.True(t, ok)
	assert.Empty(t, env.queue.Tasks)
}

func TestAddWardrobeItemQueuesProcessing(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")

	rec := env.serve(test.NewJSONAuthRequest(http.MethodPost, "/api/wardrobe", testSubject, models.WardrobeItemIn{
		Image:   jacketPhoto,
		Process: true,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out models.WardrobeItemOut
	decodeBody(t, rec, &out)
	assert.Equal(t, models.StatusPending, out.ProcessingStatus)

	require.Len(t, env.queue.Tasks, 1)
	assert.Equal(t, tasks.TypeProcessClothing, env.queue.Tasks[0].Type())
	var payload tasks.ClothingProcessingPayload
	require.NoError(t, json.Unmarshal(env.queue.Tasks[0].Payload(), &payload))
	assert.Equal(t, out.ID, payload.ClothingID)
}

func TestAddWardrobeItemRejectsBrokenImage(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	rec := env.serve(test.NewJSONAuthRequest(http.MethodPost, "/api/wardrobe", testSubject, models.WardrobeItemIn{
		Image: "bm90IGFuIGltYWdl",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.storage.Objects)
}

func TestListWardrobeOnlyOwnItems(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	packshot := "packshots/user-1/p.png"
	env.wardrobe.AddItem(context.Background(), &models.Clothing{OwnerSubject: testSubject, Name: "Mine", ImageKey: "uploads/user-1/a.png", PackshotKey: &packshot})
	env.wardrobe.AddItem(context.Background(), &models.Clothing{OwnerSubject: "someone-else", Name: "Theirs", ImageKey: "uploads/other/b.png"})

	rec := env.serve(test.NewJSONAuthRequest(http.MethodGet, "/api/wardrobe", testSubject, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []models.WardrobeItemOut
	decodeBody(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "Mine", out[0].Name)
	assert.Equal(t, "https://cache.test/"+packshot, out[0].ImageURL)
}

func TestCreateTryOnJob(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	id, _ := env.wardrobe.AddItem(context.Background(), &models.Clothing{OwnerSubject: testSubject, ImageKey: "uploads/user-1/a.png"})

	rec := env.serve(test.NewJSONAuthRequest(http.MethodPost, "/api/tryon/jobs", testSubject, models.TryOnJobIn{
		BasePhoto:   personPhoto,
		ClothingIDs: []int64{int64(id)},
		Quality:     "standard",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out models.TryOnJobOut
	decodeBody(t, rec, &out)
	assert.Equal(t, models.StatusPending, out.Status)
	assert.Equal(t, models.ModeRemote, out.Mode)

	generation := env.wardrobe.TryOns[out.ID]
	require.NotNil(t, generation)
	assert.Equal(t, pq.Int64Array{int64(id)}, generation.ClothingIDs)
	_, ok := env.storage.Object(generation.BasePhotoKey)
	assert.True(t, ok)

	require.Len(t, env.queue.Tasks, 1)
	assert.Equal(t, tasks.TypeTryOnGeneration, env.queue.Tasks[0].Type())
}

func TestCreateTryOnJobUnknownClothing(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	other, _ := env.wardrobe.AddItem(context.Background(), &models.Clothing{OwnerSubject: "someone-else", ImageKey: "b.png"})

	rec := env.serve(test.NewJSONAuthRequest(http.MethodPost, "/api/tryon/jobs", testSubject, models.TryOnJobIn{
		BasePhoto:   personPhoto,
		ClothingIDs: []int64{int64(other)},
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.queue.Tasks)
}

func TestCreateTryOnJobTooManyItems(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	rec := env.serve(test.NewJSONAuthRequest(http.MethodPost, "/api/tryon/jobs", testSubject, models.TryOnJobIn{
		BasePhoto:   personPhoto,
		ClothingIDs: []int64{1, 2, 3, 4, 5, 6, 7},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTryOnJob(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	resultKey := "tryons/user-1/r.png"
	id, _ := env.wardrobe.CreateTryOn(context.Background(), &models.TryOnGeneration{
		OwnerSubject:    testSubject,
		Mode:            models.ModeRemote,
		Status:          models.StatusCompleted,
		ResultKey:       &resultKey,
		FellBackToLocal: true,
	})

	rec := env.serve(test.NewJSONAuthRequest(http.MethodGet, fmt.Sprintf("/api/tryon/jobs/%d", id), testSubject, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.TryOnJobOut
	decodeBody(t, rec, &out)
	assert.Equal(t, models.StatusCompleted, out.Status)
	assert.True(t, out.FellBackToLocal)
	assert.Equal(t, "https://cache.test/"+resultKey, out.ResultURL)

	rec = env.serve(test.NewJSONAuthRequest(http.MethodGet, fmt.Sprintf("/api/tryon/jobs/%d", id), "someone-else", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.serve(test.NewJSONAuthRequest(http.MethodGet, "/api/tryon/jobs/999", testSubject, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
