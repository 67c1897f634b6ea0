package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat"
)

var errUnsupportedImage = errors.New("unsupported image type; use PNG, JPEG or WebP")

// postMessageRequest is the JSON form of a turn. Image is base64, optionally
// wrapped in a data URI.
type postMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (s *Server) handleIndex(c *gin.Context) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) handleListMessages(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

func (s *Server) handlePostMessage(c *gin.Context) {
	turn, err := s.readTurn(c)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUnsupportedImage) {
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	user, done, err := s.store.Dispatch(c.Request.Context(), turn)
	switch {
	case errors.Is(err, mathchat.ErrEmptyTurn):
		c.JSON(http.StatusBadRequest, gin.H{"error": "enter a problem or attach an image"})
		return
	case errors.Is(err, mathchat.ErrRequestPending):
		c.JSON(http.StatusConflict, gin.H{"error": "a problem is already being solved"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if c.Query("wait") == "true" {
		select {
		case reply := <-done:
			c.JSON(http.StatusOK, gin.H{"message": reply})
		case <-c.Request.Context().Done():
			// the client left; the generation still completes in the store
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": user})
}

// readTurn accepts either a JSON body or a multipart form with a text
// field and at most one image file.
func (s *Server) readTurn(c *gin.Context) (mathchat.Turn, error) {
	var turn mathchat.Turn

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req postMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return turn, fmt.Errorf("invalid request body: %w", err)
		}
		turn.Text = req.Text
		if req.Image == "" {
			return turn, nil
		}
		data, err := decodeImageField(req.Image)
		if err != nil {
			return turn, err
		}
		img, err := sniffImage(data)
		if err != nil {
			return turn, err
		}
		turn.Image = img
		return turn, nil
	}

	turn.Text = c.PostForm("text")

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return turn, nil
		}
		return turn, fmt.Errorf("invalid form: %w", err)
	}
	files := form.File["image"]
	switch len(files) {
	case 0:
		return turn, nil
	case 1:
	default:
		return turn, errors.New("only one image can be attached")
	}

	f, err := files[0].Open()
	if err != nil {
		return turn, fmt.Errorf("reading upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return turn, fmt.Errorf("reading upload: %w", err)
	}
	img, err := sniffImage(data)
	if err != nil {
		return turn, err
	}
	s.logger.Debug("image attached",
		zap.String("filename", files[0].Filename),
		zap.String("mime_type", img.MIMEType),
		zap.Int("bytes", len(data)),
	)
	turn.Image = img
	return turn, nil
}

// sniffImage detects the MIME type from content; the declared type is not trusted.
func sniffImage(data []byte) (*mathchat.InputImage, error) {
	if len(data) == 0 {
		return nil, mathchat.ErrEmptyImageData
	}
	detected := mimetype.Detect(data)
	for mime := range mathchat.ValidMIMETypes {
		if detected.Is(mime) {
			return &mathchat.InputImage{Data: data, MIMEType: mime}, nil
		}
	}
	return nil, fmt.Errorf("%w (got %s)", errUnsupportedImage, detected.String())
}

func decodeImageField(field string) ([]byte, error) {
	if strings.HasPrefix(field, "data:") {
		_, payload, ok := strings.Cut(field, ",")
		if !ok {
			return nil, errors.New("malformed data URI")
		}
		field = payload
	}
	data, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}

// handleMessageImage serves the decoded solution image of a model message
// so the page can put it on the clipboard as a blob.
func (s *Server) handleMessageImage(c *gin.Context) {
	msg, ok := s.store.Message(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	data, mimeType, err := msg.ImageData()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message has no image"})
		return
	}
	c.Header("Content-Disposition", `inline; filename="solution-`+msg.ID+`.png"`)
	c.Data(http.StatusOK, mimeType, data)
}

func (s *Server) handleAttachment(c *gin.Context) {
	data, contentType, ok := s.storage.Get(c.Param("path"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
