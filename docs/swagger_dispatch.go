package docs

// @title           Ride Dispatch API
// @version         1.0
// @description     Real-time dispatch coordinator. Passengers request rides over REST or WebSocket, drivers race to accept over WebSocket, and lifecycle updates are pushed to both parties. Committed transitions are mirrored to a durable store and published to the event bus.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
