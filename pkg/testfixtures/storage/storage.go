// Package storage starts migrated datastores for tests.
package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/openfga/recordrelay/pkg/storage/migrate"
)

// DatastoreTestContainer is a running datastore whose schema is fully migrated.
type DatastoreTestContainer interface {
	// GetConnectionURI returns a URI the engine's datastore constructor accepts.
	GetConnectionURI() string

	// GetDatabaseSchemaVersion returns the last migration applied.
	GetDatabaseSchemaVersion() int64
}

type datastoreContainer struct {
	uri     string
	version int64
}

func (d *datastoreContainer) GetConnectionURI() string {
	return d.uri
}

func (d *datastoreContainer) GetDatabaseSchemaVersion() int64 {
	return d.version
}

// uriEnvVars name the variables that point a test at an existing server instead of a container.
var uriEnvVars = map[string]string{
	"postgres": "RECORDRELAY_TEST_POSTGRES_URI",
	"mysql":    "RECORDRELAY_TEST_MYSQL_URI",
}

// RunDatastoreTestContainer returns a migrated datastore for engine. The server named by
// RECORDRELAY_TEST_<ENGINE>_URI is used when set, otherwise a docker container is started
// and removed once the test finishes.
func RunDatastoreTestContainer(t testing.TB, engine string) DatastoreTestContainer {
	var uri string
	switch engine {
	case "postgres":
		uri = os.Getenv(uriEnvVars[engine])
		if uri == "" {
			uri = runPostgresContainer(t)
		}
	case "mysql":
		uri = os.Getenv(uriEnvVars[engine])
		if uri == "" {
			uri = runMySQLContainer(t)
		}
	default:
		t.Fatalf("'%s' engine is not supported by RunDatastoreTestContainer", engine)
		return nil
	}

	version, err := migrate.RunMigrations(context.Background(), migrate.MigrationConfig{
		Engine:  engine,
		URI:     uri,
		Timeout: 2 * time.Minute,
	})
	require.NoError(t, err, "failed to migrate %s", engine)

	return &datastoreContainer{uri: uri, version: version}
}

type containerSpec struct {
	image string
	env   []string
	port  nat.Port
}

// runContainer starts spec and returns the host address its port is published on.
// Readiness is left to the caller.
func runContainer(t testing.TB, name string, spec containerSpec) string {
	ctx := context.Background()

	dockerClient, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		dockerClient.Close()
	})

	allImages, err := dockerClient.ImageList(ctx, image.ListOptions{All: true})
	require.NoError(t, err)

	found := false
AllImages:
	for _, img := range allImages {
		for _, tag := range img.RepoTags {
			if strings.Contains(tag, spec.image) {
				found = true
				break AllImages
			}
		}
	}

	if !found {
		t.Logf("pulling image %s", spec.image)
		reader, err := dockerClient.ImagePull(ctx, spec.image, image.PullOptions{})
		require.NoError(t, err)

		_, err = io.Copy(io.Discard, reader)
		require.NoError(t, err)
		_ = reader.Close()
	}

	containerCfg := container.Config{
		Env:          spec.env,
		ExposedPorts: nat.PortSet{spec.port: {}},
		Image:        spec.image,
	}
	hostCfg := container.HostConfig{
		AutoRemove:      true,
		PublishAllPorts: true,
	}

	name = name + "-" + ulid.Make().String()

	cont, err := dockerClient.ContainerCreate(ctx, &containerCfg, &hostCfg, nil, nil, name)
	require.NoError(t, err, "failed to create %s docker container", spec.image)

	t.Cleanup(func() {
		t.Logf("stopping container %s", name)
		timeoutSec := 5

		err := dockerClient.ContainerStop(context.Background(), cont.ID, container.StopOptions{Timeout: &timeoutSec})
		if err != nil && !errdefs.IsNotFound(err) {
			t.Logf("failed to stop container %s: %v", name, err)
		}
	})

	err = dockerClient.ContainerStart(ctx, cont.ID, container.StartOptions{})
	require.NoError(t, err, "failed to start %s container", spec.image)

	inspect, err := dockerClient.ContainerInspect(ctx, cont.ID)
	require.NoError(t, err)

	bindings, ok := inspect.NetworkSettings.Ports[spec.port]
	if !ok || len(bindings) == 0 {
		require.FailNow(t, "failed to get host port mapping", "container %s", name)
	}

	return "localhost:" + bindings[0].HostPort
}
