package expense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/zombor/expense-scanner/internal/scanning"
)

// stubSource returns a fixed transcript for every bitmap
type stubSource struct {
	text string
	err  error
}

func (s *stubSource) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	return s.text, s.err
}

func (s *stubSource) Close() error {
	return nil
}

func receiptPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 230
	}
	for x := 5; x < 35; x++ {
		img.SetGray(x, 10, color.Gray{Y: 20})
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		source      *stubSource
		server      *Server
		ghttpServer *ghttp.Server
		scannedAt   time.Time
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		source = &stubSource{}
		scannedAt = time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

		classifier, err := scanning.NewClassifier(scanning.DefaultKeywordTable())
		Expect(err).NotTo(HaveOccurred())
		pipeline := scanning.NewPipeline(
			scanning.NewPreprocessor(scanning.DefaultPreprocessOptions()),
			source,
			classifier,
			scanning.WithRecognitionTimeout(5*time.Second),
			scanning.WithClock(func() time.Time { return scannedAt }),
		)

		service := NewServiceWithDeps(db, pipeline, newTestTokens(), bcrypt.MinCost,
			&mockIDGenerator{prefix: "id"}, &mockTimeSource{now: scannedAt})
		server = NewServerWithMux(service, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	do := func(method, path, token string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	doJSON := func(method, path, token string, payload any) *http.Response {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			Expect(err).NotTo(HaveOccurred())
			body = bytes.NewReader(data)
		}
		return do(method, path, token, body, "application/json")
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	errorMessage := func(resp *http.Response) string {
		var body map[string]string
		decode(resp, &body)
		return body["error"]
	}

	login := func() string {
		resp := doJSON("POST", "/api/auth/register", "", map[string]string{"email": "ana@example.com", "password": "correct horse"})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		resp.Body.Close()

		resp = doJSON("POST", "/api/auth/token", "", map[string]string{"email": "ana@example.com", "password": "correct horse"})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var body map[string]string
		decode(resp, &body)
		return body["access_token"]
	}

	Describe("root", func() {
		It("should return a welcome message with CORS headers", func() {
			resp := do("GET", "/", "", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			var body map[string]string
			decode(resp, &body)
			Expect(body["message"]).To(ContainSubstring("Expense Scanner"))
		})

		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/expenses", "", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				resp := do("POST", "/", "", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})

	Describe("auth", func() {
		It("should register a user", func() {
			resp := doJSON("POST", "/api/auth/register", "", map[string]string{"email": "ana@example.com", "password": "correct horse"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var body map[string]string
			decode(resp, &body)
			Expect(body).To(Equal(map[string]string{"id": "id-1", "email": "ana@example.com"}))
		})

		When("the email is taken", func() {
			It("should return Bad Request", func() {
				login()
				resp := doJSON("POST", "/api/auth/register", "", map[string]string{"email": "ana@example.com", "password": "other password"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("Email already registered"))
			})
		})

		When("the password is too short", func() {
			It("should return Bad Request", func() {
				resp := doJSON("POST", "/api/auth/register", "", map[string]string{"email": "ana@example.com", "password": "short"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		It("should issue a bearer token", func() {
			login()
			resp := doJSON("POST", "/api/auth/token", "", map[string]string{"email": "ana@example.com", "password": "correct horse"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body map[string]string
			decode(resp, &body)
			Expect(body["token_type"]).To(Equal("bearer"))
			Expect(body["access_token"]).NotTo(BeEmpty())
		})

		It("should accept an OAuth2 password form", func() {
			login()
			form := url.Values{"username": {"ana@example.com"}, "password": {"correct horse"}}
			resp := do("POST", "/api/auth/token", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		When("the password is wrong", func() {
			It("should return Unauthorized", func() {
				login()
				resp := doJSON("POST", "/api/auth/token", "", map[string]string{"email": "ana@example.com", "password": "wrong horse"})
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		When("no token is sent", func() {
			It("should return Unauthorized", func() {
				resp := do("GET", "/api/expenses", "", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(HavePrefix("Bearer"))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
				resp.Body.Close()
			})
		})

		When("the token is invalid", func() {
			It("should return Unauthorized", func() {
				resp := do("GET", "/api/expenses", "garbage", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(errorMessage(resp)).To(Equal("Could not validate credentials"))
			})
		})
	})

	Describe("expenses", func() {
		var token string

		newExpense := map[string]any{
			"description": "Lunch",
			"amount":      12.5,
			"category":    "Food",
			"date":        "2025-09-14T00:00:00Z",
		}

		BeforeEach(func() {
			token = login()
		})

		It("should create and list expenses", func() {
			resp := doJSON("POST", "/api/expenses", token, newExpense)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var created Expense
			decode(resp, &created)
			Expect(created.Description).To(Equal("Lunch"))
			Expect(created.Amount.Equal(decimal.RequireFromString("12.5"))).To(BeTrue())

			resp = do("GET", "/api/expenses", token, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var listed []Expense
			decode(resp, &listed)
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].ID).To(Equal(created.ID))
		})

		When("the body is not JSON", func() {
			It("should return Bad Request", func() {
				resp := do("POST", "/api/expenses", token, strings.NewReader("{"), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("Invalid request body"))
			})
		})

		When("the expense is invalid", func() {
			It("should return Bad Request", func() {
				resp := doJSON("POST", "/api/expenses", token, map[string]any{"description": "Lunch", "amount": 0, "category": "Food", "date": "2025-09-14T00:00:00Z"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("amount"))
			})
		})

		It("should update and delete an expense", func() {
			resp := doJSON("POST", "/api/expenses", token, newExpense)
			var created Expense
			decode(resp, &created)

			resp = doJSON("PUT", "/api/expenses/"+created.ID, token, map[string]any{"category": "Travel"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var updated Expense
			decode(resp, &updated)
			Expect(updated.Category).To(Equal("Travel"))
			Expect(updated.Description).To(Equal("Lunch"))

			resp = do("DELETE", "/api/expenses/"+created.ID, token, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()

			resp = do("DELETE", "/api/expenses/"+created.ID, token, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(errorMessage(resp)).To(Equal("Expense not found"))
		})

		It("should report insights", func() {
			resp := doJSON("POST", "/api/expenses", token, newExpense)
			resp.Body.Close()
			resp = doJSON("POST", "/api/expenses", token, map[string]any{
				"description": "Train", "amount": "30.00", "category": "Travel", "date": "2025-08-02T00:00:00Z",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			resp.Body.Close()

			resp = do("GET", "/api/insights/summary", token, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var summary Summary
			decode(resp, &summary)
			Expect(summary.TotalExpenses.String()).To(Equal("42.5"))
			Expect(summary.MonthExpenses.String()).To(Equal("12.5"))
			Expect(summary.TransactionCount).To(Equal(2))

			resp = do("GET", "/api/insights/by-category", token, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var totals map[string]decimal.Decimal
			decode(resp, &totals)
			Expect(totals).To(HaveKey("Food"))
			Expect(totals["Travel"].String()).To(Equal("30"))
		})

		When("the database fails", func() {
			It("should return Internal Server Error", func() {
				db.listErr = errors.New("read failed")
				resp := do("GET", "/api/expenses", token, nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleUploadReceipt", func() {
		var token string

		upload := func(filename, contentType string, data []byte) *http.Response {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
			if contentType != "" {
				header.Set("Content-Type", contentType)
			}
			part, err := writer.CreatePart(header)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return do("POST", "/api/upload/receipt", token, body, writer.FormDataContentType())
		}

		BeforeEach(func() {
			token = login()
			source.text = "SWIGGY\nItem 1 10.00\nTotal: 23.50"
		})

		It("should return the suggested expense fields", func() {
			resp := upload("lunch.png", "image/png", receiptPNG())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var fields map[string]any
			decode(resp, &fields)
			Expect(fields["amount"]).To(Equal(23.5))
			Expect(fields["category"]).To(Equal("Food"))
			Expect(fields["description"]).To(Equal("Scanned Receipt (lunch.png)"))
			Expect(fields["date"]).To(Equal("2025-09-15T12:00:00Z"))
			Expect(fields["extracted_text"]).To(Equal(source.text))
			Expect(db.expenses).To(BeEmpty())
		})

		When("the part has no content type", func() {
			It("should fall back to the file extension", func() {
				resp := upload("lunch.png", "", receiptPNG())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("the file is not an image", func() {
			It("should return Bad Request", func() {
				resp := upload("notes.txt", "text/plain", []byte("hello"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("File provided is not an image."))
			})
		})

		When("the image is corrupted", func() {
			It("should return Bad Request", func() {
				resp := upload("broken.png", "image/png", []byte("\x89PNG not really"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("Invalid or corrupted image file."))
			})
		})

		When("recognition fails", func() {
			It("should return Internal Server Error with a fixed message", func() {
				source.err = errors.New("engine crashed")
				resp := upload("lunch.png", "image/png", receiptPNG())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorMessage(resp)).To(Equal("There was an error processing the file."))
			})
		})

		When("no file is attached", func() {
			It("should return Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("note", "nothing here")).To(Succeed())
				Expect(writer.Close()).To(Succeed())
				resp := do("POST", "/api/upload/receipt", token, body, writer.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("no token is sent", func() {
			It("should return Unauthorized", func() {
				token = ""
				resp := upload("lunch.png", "image/png", receiptPNG())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})
	})
})
