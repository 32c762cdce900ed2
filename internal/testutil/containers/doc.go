// Package containers manages Docker containers for integration tests via
// testcontainers-go. The MySQL helper backs repository tests that need a
// real MySQL server instead of the in-memory sqlite used by unit tests.
//
// Integration tests using this package carry the "integration" build tag:
//
//	go test -tags=integration ./...
//
// Containers are created per test run. A typical package uses TestMain:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
package containers
