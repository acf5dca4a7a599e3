package expense

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/expense-scanner/internal/auth"
	"github.com/zombor/expense-scanner/internal/scanning"
)

// maxUploadSize bounds receipt uploads; high-resolution phone photos fit comfortably
const maxUploadSize = int64(50 << 20)

const processingFailedMessage = "There was an error processing the file."

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, "Expense not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, "Incorrect email or password", http.StatusUnauthorized)
	case errors.Is(err, ErrEmailTaken):
		writeError(w, "Email already registered", http.StatusBadRequest)
	case errors.Is(err, ErrInvalidExpense), errors.Is(err, ErrInvalidRegistration):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Expense Scanner API"})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or an OAuth2 password form where the
// email is sent as username
func readCredentials(r *http.Request) (credentials, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return credentials{}, err
		}
		return credentials{Email: r.PostFormValue("username"), Password: r.PostFormValue("password")}, nil
	}

	var c credentials
	err := json.NewDecoder(r.Body).Decode(&c)
	return c, err
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.service.Register(c.Email, c.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "email": user.Email})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.service.Login(c.Email, c.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var input ExpenseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.CreateExpense(userFromContext(r.Context()), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses(userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var update ExpenseUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.UpdateExpense(userFromContext(r.Context()), r.PathValue("id"), update)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(userFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSpendingByCategory(w http.ResponseWriter, r *http.Request) {
	totals, err := s.service.SpendingByCategory(userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// uploadMediaType returns the declared media type of an upload, guessing from
// the extension when the client sent none
func uploadMediaType(declared, filename string) string {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return mediaType
	}
}

// acceptedMediaType reports whether an upload looks like an image or a PDF
func acceptedMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "application/pdf")
}

// handleUploadReceipt scans a receipt and returns suggested expense fields
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	mediaType := uploadMediaType(header.Header.Get("Content-Type"), header.Filename)
	if !acceptedMediaType(mediaType) {
		writeError(w, "File provided is not an image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	result, err := s.service.ScanReceipt(r.Context(), header.Filename, data, mediaType)
	if err != nil {
		if errors.Is(err, scanning.ErrMalformedInput) {
			writeError(w, "Invalid or corrupted image file.", http.StatusBadRequest)
			return
		}
		writeError(w, processingFailedMessage, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result.Fields())
}
