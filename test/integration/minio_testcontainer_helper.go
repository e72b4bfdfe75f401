package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/resumekit/resumekit/internal/service"
)

const (
	minioTestImageEnv     = "MINIO_TEST_IMAGE"
	defaultMinioTestImage = "docker.io/minio/minio:RELEASE.2025-09-07T16-13-09Z"
	minioTestCreds        = "minioadmin"
)

// minioIntegrationEnv is a throwaway object store for one test: the storage
// service under test plus a second raw client used to assert on bucket state
// from the outside.
type minioIntegrationEnv struct {
	endpoint string
	bucket   string

	storage *service.MinIOStorageService
	client  *minio.Client

	container testcontainers.Container
}

func newMinIOIntegrationEnv(t *testing.T) *minioIntegrationEnv {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: minioTestImage(),
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioTestCreds,
				"MINIO_ROOT_PASSWORD": minioTestCreds,
			},
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data", "--address", ":9000"},
			WaitingFor: wait.ForListeningPort("9000/tcp").
				WithStartupTimeout(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio test container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	env := &minioIntegrationEnv{
		container: container,
		bucket:    fmt.Sprintf("photos-it-%d", time.Now().UnixNano()),
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve minio host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		t.Fatalf("resolve minio port: %v", err)
	}
	env.endpoint = net.JoinHostPort(host, port.Port())

	env.storage, err = service.NewMinIOStorageService(env.endpoint, minioTestCreds, minioTestCreds, env.bucket, false)
	if err != nil {
		t.Fatalf("create minio storage service: %v", err)
	}
	env.client, err = minio.New(env.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(minioTestCreds, minioTestCreds, ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("create minio verification client: %v", err)
	}

	env.awaitReady(t)
	return env
}

func minioTestImage() string {
	if img := strings.TrimSpace(os.Getenv(minioTestImageEnv)); img != "" {
		return img
	}
	return defaultMinioTestImage
}

// awaitReady polls until the API answers; the listening port alone is not
// enough right after container start.
func (e *minioIntegrationEnv) awaitReady(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var lastErr error
	for {
		if _, lastErr = e.client.ListBuckets(ctx); lastErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("minio readiness check timed out: %v", lastErr)
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (e *minioIntegrationEnv) objectExists(t *testing.T, objectKey string) bool {
	t.Helper()
	_, err := e.client.StatObject(context.Background(), e.bucket, objectKey, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return true
	case isObjectNotFound(err):
		return false
	default:
		t.Fatalf("stat minio object %q: %v", objectKey, err)
		return false
	}
}

func isObjectNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
