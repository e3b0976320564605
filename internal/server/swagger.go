package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs

// @title Shelfscan API
// @version 0.1
// @description Product-count estimation for e-commerce sites: submit a URL, watch the run over a websocket, export the result as CSV.
// @contact.name Shelfscan Maintainers
// @contact.url https://github.com/shelfscan/shelfscan
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
