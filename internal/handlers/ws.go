package handlers

import (
	"log"

	"chatline/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WebSocketHandler runs the read loop for one authenticated connection.
// Identity comes from locals set by AuthMiddleware before the upgrade; the
// session is wired to the hub and presence registry for the lifetime of the
// connection.
func WebSocketHandler(deps Deps) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID := c.Locals("user_id").(string)
		name, _ := c.Locals("user_name").(string)

		connID := uuid.New().String()
		sess := Connect(deps, connID, userID, name, c)

		defer func() {
			sess.Disconnect()
			c.Close()
		}()

		for {
			msgType, payload, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Printf("read from user %s: %v", userID, err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			sess.Dispatch(payload)
		}
	})
}

// WSUpgradeMiddleware rejects plain HTTP requests on the websocket route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware resolves the bearer token into a user identity before any
// handler runs. The token rides the upgrade request as the `access_token`
// query param or an Authorization header, never a cookie.
func AuthMiddleware(c *fiber.Ctx) error {
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	c.Locals("user_id", userID)

	if name, ok := claims["name"].(string); ok {
		c.Locals("user_name", name)
	}

	return c.Next()
}
