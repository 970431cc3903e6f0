package errx

import (
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
)

// WrapMongo maps MongoDB driver errors to AppError.
func WrapMongo(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return &AppError{Kind: KindNotFound, Err: err, Status: http.StatusNotFound, Message: "document not found"}
	case mongo.IsDuplicateKeyError(err):
		return &AppError{Kind: KindDuplicateKey, Err: err, Status: http.StatusConflict, Message: "duplicate key"}
	}

	return &AppError{Kind: KindStorage, Err: err, Status: http.StatusBadGateway, Message: MongoErrorMessage}
}
