package test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"tryonapi/models"
	"tryonapi/services"

	"github.com/golang-jwt/jwt/v4"
	"github.com/hibiken/asynq"
)

const TestJWTSecret = "test-secret"

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(subject string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(GetJWTSecret()))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", subject, err)
	}
	return t
}

func GetJWTSecret() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}
	return TestJWTSecret
}

func NewJSONAuthRequest(method string, target string, subject string, param interface{}) *http.Request {
	req := NewJSONRequest(method, target, param)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", GenerateUserToken(subject)))
	return req
}

func NewJSONAuthRequestCustomAuth(method string, target string, authorizationString string, param interface{}) *http.Request {
	req := NewJSONRequest(method, target, param)
	req.Header.Add("Authorization", authorizationString)
	return req
}

// PNGBytes encodes a solid w×h image.
func PNGBytes(w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func PNGBase64(w, h int, c color.Color) string {
	return base64.StdEncoding.EncodeToString(PNGBytes(w, h, c))
}

// DecodePNGSize returns the dimensions of an encoded image.
func DecodePNGSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// FakeTransport answers every operation from its fields and records what it received.
type FakeTransport struct {
	mu sync.Mutex

	Models        []string
	ModelsErr     error
	Image         *services.ImagePayload
	ImageErr      error
	Structured    *services.StructuredPayload
	StructuredErr error

	Calls       []string
	Credentials []string
	EditReqs    []services.ImageEditRequest
	StructReqs  []services.StructuredRequest
}

var _ services.Transport = (*FakeTransport)(nil)

func (f *FakeTransport) record(op, credential string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
	f.Credentials = append(f.Credentials, credential)
}

func (f *FakeTransport) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *FakeTransport) ListModels(ctx context.Context, credential string) ([]string, error) {
	f.record(services.OpCheckCredential, credential)
	return f.Models, f.ModelsErr
}

func (f *FakeTransport) edit(op, credential string, req services.ImageEditRequest) (*services.ImagePayload, error) {
	f.record(op, credential)
	f.mu.Lock()
	f.EditReqs = append(f.EditReqs, req)
	f.mu.Unlock()
	return f.Image, f.ImageErr
}

func (f *FakeTransport) structured(op, credential string, req services.StructuredRequest) (*services.StructuredPayload, error) {
	f.record(op, credential)
	f.mu.Lock()
	f.StructReqs = append(f.StructReqs, req)
	f.mu.Unlock()
	return f.Structured, f.StructuredErr
}

func (f *FakeTransport) ExtractPackshot(ctx context.Context, credential string, req services.ImageEditRequest) (*services.ImagePayload, error) {
	return f.edit(services.OpExtractPackshot, credential, req)
}

func (f *FakeTransport) GenerateComposite(ctx context.Context, credential string, req services.ImageEditRequest) (*services.ImagePayload, error) {
	return f.edit(services.OpGenerateComposite, credential, req)
}

func (f *FakeTransport) AnalyzeItem(ctx context.Context, credential string, req services.StructuredRequest) (*services.StructuredPayload, error) {
	return f.structured(services.OpAnalyzeItem, credential, req)
}

func (f *FakeTransport) ValidatePhoto(ctx context.Context, credential string, req services.StructuredRequest) (*services.StructuredPayload, error) {
	return f.structured(services.OpValidatePhoto, credential, req)
}

// StructuredJSON wraps a JSON document the way the service returns structured output.
func StructuredJSON(payload interface{}, usage *services.Usage) *services.StructuredPayload {
	return &services.StructuredPayload{
		Envelope: services.TextEnvelope(JsonString(payload)),
		Usage:    usage,
	}
}

// WardrobeMock is an in-memory WardrobeProvider.
type WardrobeMock struct {
	mu      sync.Mutex
	nextID  uint
	Items   map[uint]*models.Clothing
	TryOns  map[uint]*models.TryOnGeneration
	SaveErr error
}

var _ services.WardrobeProvider = (*WardrobeMock)(nil)

func NewWardrobeMock() *WardrobeMock {
	return &WardrobeMock{Items: map[uint]*models.Clothing{}, TryOns: map[uint]*models.TryOnGeneration{}}
}

func (w *WardrobeMock) id() uint {
	w.nextID++
	return w.nextID
}

func (w *WardrobeMock) AddItem(ctx context.Context, item *models.Clothing) (uint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	item.ID = w.id()
	item.CreatedAt = time.Now()
	if item.ProcessingStatus == "" {
		item.ProcessingStatus = models.StatusIdle
	}
	stored := *item
	w.Items[item.ID] = &stored
	return item.ID, nil
}

func (w *WardrobeMock) List(ctx context.Context, owner string) ([]models.Clothing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var items []models.Clothing
	for id := uint(1); id <= w.nextID; id++ {
		if item, ok := w.Items[id]; ok && item.OwnerSubject == owner {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (w *WardrobeMock) GetItem(ctx context.Context, id uint) (*models.Clothing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	item, ok := w.Items[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (w *WardrobeMock) GetItems(ctx context.Context, owner string, ids []int64) ([]models.Clothing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	items := make([]models.Clothing, 0, len(ids))
	for _, id := range ids {
		item, ok := w.Items[uint(id)]
		if !ok || item.OwnerSubject != owner {
			return nil, fmt.Errorf("clothing %d: %w", id, services.ErrNotFound)
		}
		items = append(items, *item)
	}
	return items, nil
}

func (w *WardrobeMock) SaveItem(ctx context.Context, item *models.Clothing) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.SaveErr != nil {
		return w.SaveErr
	}
	stored := *item
	w.Items[item.ID] = &stored
	return nil
}

func (w *WardrobeMock) CreateTryOn(ctx context.Context, generation *models.TryOnGeneration) (uint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	generation.ID = w.id()
	if generation.Status == "" {
		generation.Status = models.StatusPending
	}
	stored := *generation
	w.TryOns[generation.ID] = &stored
	return generation.ID, nil
}

func (w *WardrobeMock) GetTryOn(ctx context.Context, id uint) (*models.TryOnGeneration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	generation, ok := w.TryOns[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	copied := *generation
	return &copied, nil
}

func (w *WardrobeMock) SaveTryOn(ctx context.Context, generation *models.TryOnGeneration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.SaveErr != nil {
		return w.SaveErr
	}
	stored := *generation
	w.TryOns[generation.ID] = &stored
	return nil
}

// AWSProviderMock keeps uploaded objects in memory. Presigned URLs have the form mock://bucket/key.
type AWSProviderMock struct {
	mu      sync.Mutex
	MockUrl string
	Objects map[string][]byte
}

var _ services.AWSServiceProvider = (*AWSProviderMock)(nil)

func NewAWSProviderMock() *AWSProviderMock {
	return &AWSProviderMock{Objects: map[string][]byte{}}
}

func (awsService *AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService *AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {
	return fmt.Sprintf("mock://%s/%s", bucketName, fileName), nil
}

func (awsService *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	if awsService.MockUrl != "" {
		return awsService.MockUrl, nil
	}
	return fmt.Sprintf("https://storage.test/%s/%s", bucketName, fileKey), nil
}

func (awsService *AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	key := strings.TrimPrefix(url, fmt.Sprintf("mock://%s/", bucketName))
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	awsService.Objects[key] = fileContent
	return "", http.StatusOK, nil
}

func (awsService *AWSProviderMock) ReadObject(ctx context.Context, bucketName, fileKey string) ([]byte, error) {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	content, ok := awsService.Objects[fileKey]
	if !ok {
		return nil, fmt.Errorf("object %s not found", fileKey)
	}
	return content, nil
}

func (awsService *AWSProviderMock) Object(key string) ([]byte, bool) {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	content, ok := awsService.Objects[key]
	return content, ok
}

type URLCacheMock struct{}

func (URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return "https://cache.test/" + objectKey, nil
}

// EnqueuerMock records enqueued tasks instead of sending them to redis.
type EnqueuerMock struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
	Err   error
}

func (q *EnqueuerMock) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	q.Tasks = append(q.Tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.Tasks)), Type: task.Type(), Payload: task.Payload()}, nil
}
