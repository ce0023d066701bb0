package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           Trading Engine API
// @version         0.1.0
// @description     Engine state, trade history, and equity curve endpoints.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
