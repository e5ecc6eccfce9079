package storage

import (
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
)

const postgresImage = "postgres:17"

func runPostgresContainer(t testing.TB) string {
	addr := runContainer(t, "postgres", containerSpec{
		image: postgresImage,
		env: []string{
			"POSTGRES_DB=defaultdb",
			"POSTGRES_PASSWORD=secret",
		},
		port: nat.Port("5432/tcp"),
	})

	return fmt.Sprintf("postgres://postgres:secret@%s/defaultdb?sslmode=disable", addr)
}
