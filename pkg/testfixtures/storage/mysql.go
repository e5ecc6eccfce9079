package storage

import (
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
)

const mySQLImage = "mysql:8"

func runMySQLContainer(t testing.TB) string {
	addr := runContainer(t, "mysql", containerSpec{
		image: mySQLImage,
		env: []string{
			"MYSQL_DATABASE=defaultdb",
			"MYSQL_ROOT_PASSWORD=secret",
		},
		port: nat.Port("3306/tcp"),
	})

	return fmt.Sprintf("root:secret@tcp(%s)/defaultdb?parseTime=true", addr)
}
