// Command tradesim is the development simulator for the TrustTrade sync
// engine: it serves the trade/chat REST collaborator and the push transport
// (chat_history, chat_message, typing_indicator, new_message_notification)
// against an in-memory world, so the client engine can be exercised
// end-to-end without the production backend.
package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trusttrade/internal/domain/entity"
	"trusttrade/pkg/config"
	apperrors "trusttrade/pkg/errors"
	"trusttrade/pkg/logger"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev tool, no origin policy
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st := newState()
	h := newHub(st)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/api/chats/:id/", func(c echo.Context) error {
		if _, err := identify(c.QueryParam("token"), c.Request().Header.Get("Authorization")); err != nil {
			return c.JSON(http.StatusUnauthorized, errBody(err))
		}
		conv, err := st.conversation(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusNotFound, errBody(err))
		}
		return c.JSON(http.StatusOK, conv)
	})

	e.GET("/api/chats/:id/messages/", func(c echo.Context) error {
		if _, err := identify(c.QueryParam("token"), c.Request().Header.Get("Authorization")); err != nil {
			return c.JSON(http.StatusUnauthorized, errBody(err))
		}
		if _, err := st.conversation(c.Param("id")); err != nil {
			return c.JSON(http.StatusNotFound, errBody(err))
		}
		return c.JSON(http.StatusOK, st.history(c.Param("id")))
	})

	e.POST("/api/trades/:id/action/", func(c echo.Context) error {
		userID, err := identify(c.QueryParam("token"), c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errBody(err))
		}

		var body struct {
			Action string `json:"action"`
		}
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, errBody(err))
		}

		trade, err := st.applyTradeAction(c.Param("id"), userID, entity.TradeAction(body.Action))
		if err != nil {
			status := http.StatusConflict
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				status = appErr.Status
			}
			return c.JSON(status, errBody(err))
		}
		return c.JSON(http.StatusOK, trade)
	})

	e.GET("/api/userprofile/:id/", func(c echo.Context) error {
		if _, err := identify(c.QueryParam("token"), c.Request().Header.Get("Authorization")); err != nil {
			return c.JSON(http.StatusUnauthorized, errBody(err))
		}
		return c.JSON(http.StatusOK, st.profile(c.Param("id")))
	})

	e.GET("/ws/chat/:id/", func(c echo.Context) error {
		userID, err := identify(c.QueryParam("token"), "")
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errBody(err))
		}
		conv, err := st.conversation(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusNotFound, errBody(err))
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return apperrors.Internal("failed to upgrade connection", err)
		}

		username := userID
		switch userID {
		case conv.Buyer.ID:
			username = conv.Buyer.Username
		case conv.Seller.ID:
			username = conv.Seller.Username
		}

		cl := &client{
			UserID:         userID,
			Username:       username,
			ConversationID: conv.ID,
			Conn:           conn,
			Send:           make(chan []byte, 256),
		}
		h.register(cl)
		go cl.writePump()
		go cl.readPump(h)

		// Server pushes the backfill once; the client issues no implicit message.
		h.sendHistory(cl)
		return nil
	})

	logger.Info("tradesim listening on :%s", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != http.ErrServerClosed {
		log.Fatalf("Server stopped: %v", err)
	}
}

// identify resolves the caller's user id from the bearer credential. A JWT's
// sub claim wins; any other non-empty token is taken as the user id directly,
// which keeps local testing friction-free.
func identify(queryToken, authHeader string) (string, error) {
	token := queryToken
	if token == "" && len(authHeader) > 4 && authHeader[:4] == "JWT " {
		token = authHeader[4:]
	}
	if token == "" {
		return "", apperrors.Unauthorized("missing credential", nil)
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err == nil && claims.Subject != "" {
		return claims.Subject, nil
	}
	return token, nil
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
