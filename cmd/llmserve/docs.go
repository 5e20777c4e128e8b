package main

// General API documentation for swaggo. Regenerate with `swag init -g cmd/llmserve/docs.go`.
//
// @title           llmserve API
// @version         1.0
// @description     HTTP API for serialized LLM inference over a single loaded model.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
