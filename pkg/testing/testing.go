package testing

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
)

func init() {
	// cd to the project root so relative paths (.env, logs) resolve the same way as the server.
	// usage:
	//
	//   in some_test.go,
	//   import (
	//     _ "liyu1981.xyz/seizure-alert-service/pkg/testing"
	//   )

	_, filename, _, _ := runtime.Caller(0)
	dir := path.Join(path.Dir(filename), "..", "..")
	if err := os.Chdir(dir); err != nil {
		panic(err)
	}

	// keep test logs out of the working tree
	if _, found := os.LookupEnv("IOT_LOG_DIR"); !found {
		_ = os.Setenv("IOT_LOG_DIR", filepath.Join(os.TempDir(), "seizure-alert-service-test-logs"))
	}
}
