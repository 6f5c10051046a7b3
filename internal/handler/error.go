package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Message string `json:"message"`
}

func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			log.Printf(
				"handler internal error %s [%d]: %+v\n",
				c.Request().URL.Path, he.Code, he.Internal,
			)
		}
		message, ok := he.Message.(string)
		if !ok {
			message = http.StatusText(he.Code)
		}
		if err := c.JSON(he.Code, errorResponse{Message: message}); err != nil {
			log.Printf("err returning json: %+v\n", err)
		}
		return
	}

	log.Printf("handler error %s: %+v\n", c.Request().URL.Path, err)
	if err := c.JSON(
		http.StatusInternalServerError,
		errorResponse{Message: "something went terribly wrong"},
	); err != nil {
		log.Printf("err returning json: %+v\n", err)
	}
}

func newError(err error, status int, message string) error {
	e := echo.NewHTTPError(status, message)
	if err != nil {
		e = e.WithInternal(err)
	}
	return e
}
