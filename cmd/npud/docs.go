package main

// General API documentation for swaggo. Regenerate docs with `swag init -g cmd/npud/docs.go`.
//
// @title           npud API
// @version         1.0
// @description     HTTP API of the local NPU inference runtime.
//
// @contact.name   npud maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
