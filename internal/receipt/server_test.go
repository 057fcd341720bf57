package receipt

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/line/line-bot-sdk-go/v8/linebot"
)

const testChannelSecret = "test-channel-secret"

// fakeMessenger is a fake implementation of Messenger
type fakeMessenger struct {
	content  map[string][]byte
	fetchErr error
	replyErr error
	replies  []fakeReply
}

type fakeReply struct {
	token    string
	messages []linebot.SendingMessage
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{content: make(map[string][]byte)}
}

func (f *fakeMessenger) Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, fakeReply{token: replyToken, messages: messages})
	return nil
}

func (f *fakeMessenger) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.content[messageID]
	if !ok {
		return nil, errors.New("content not found")
	}
	return data, nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

var _ = Describe("Server", func() {
	var (
		store     *mockStore
		scanner   *mockScanner
		completer *mockCompleter
		messenger *fakeMessenger
		server    *Server

		body      []byte
		signature string
		recorder  *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		store = newMockStore()
		scanner = &mockScanner{response: scanResponse}
		completer = &mockCompleter{response: "好的！"}
		messenger = newFakeMessenger()

		service := NewServiceWithOptions(store, scanner, completer, nil, false)
		server = NewServer(service, messenger, testChannelSecret)
	})

	JustBeforeEach(func() {
		req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
		req.Header.Set("X-Line-Signature", signature)
		recorder = httptest.NewRecorder()
		server.ServeHTTP(recorder, req)
	})

	When("the signature is invalid", func() {
		BeforeEach(func() {
			body = []byte(`{"events":[]}`)
			signature = "bogus"
		})

		It("rejects the request with a client error", func() {
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("processes nothing", func() {
			Expect(messenger.replies).To(BeEmpty())
		})
	})

	When("a text message event arrives", func() {
		BeforeEach(func() {
			body = []byte(`{"events":[{"type":"message","timestamp":1735732800000,"replyToken":"rt1","source":{"type":"user","userId":"U123"},"message":{"type":"text","id":"m1","text":"hello"}}]}`)
			signature = signBody(testChannelSecret, body)
		})

		It("acknowledges the delivery", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("replies with the completion answer", func() {
			Expect(messenger.replies).To(HaveLen(1))
			Expect(messenger.replies[0].token).To(Equal("rt1"))
			Expect(messenger.replies[0].messages[0].(*linebot.TextMessage).Text).To(Equal("好的！"))
		})
	})

	When("an image message event arrives", func() {
		BeforeEach(func() {
			messenger.content["m2"] = []byte("image-bytes")
			body = []byte(`{"events":[{"type":"message","timestamp":1735732800000,"replyToken":"rt2","source":{"type":"user","userId":"U123"},"message":{"type":"image","id":"m2","contentProvider":{"type":"line"}}}]}`)
			signature = signBody(testChannelSecret, body)
		})

		It("acknowledges the delivery", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("fetches the content and replies with the summary cards", func() {
			Expect(scanner.images).To(ConsistOf([]byte("image-bytes")))
			Expect(messenger.replies).To(HaveLen(1))
			Expect(messenger.replies[0].messages).To(HaveLen(2))
			Expect(messenger.replies[0].messages[0]).To(BeAssignableToTypeOf(&linebot.FlexMessage{}))
		})

		It("stores the extracted receipt", func() {
			Expect(store.puts).To(ContainElement("receipt_helper/U123/Receipts/202501011200"))
		})
	})

	When("an unsupported message kind arrives", func() {
		BeforeEach(func() {
			body = []byte(`{"events":[{"type":"message","timestamp":1735732800000,"replyToken":"rt3","source":{"type":"user","userId":"U123"},"message":{"type":"sticker","id":"m3","packageId":"1","stickerId":"2"}}]}`)
			signature = signBody(testChannelSecret, body)
		})

		It("acknowledges and skips it silently", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(messenger.replies).To(BeEmpty())
		})
	})

	When("a non-message event arrives", func() {
		BeforeEach(func() {
			body = []byte(`{"events":[{"type":"follow","timestamp":1735732800000,"replyToken":"rt4","source":{"type":"user","userId":"U123"}}]}`)
			signature = signBody(testChannelSecret, body)
		})

		It("acknowledges and skips it silently", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(messenger.replies).To(BeEmpty())
		})
	})

	When("the pipeline fails for an event", func() {
		BeforeEach(func() {
			scanner.scanErr = errors.New("model unavailable")
			messenger.content["m2"] = []byte("image-bytes")
			body = []byte(`{"events":[{"type":"message","timestamp":1735732800000,"replyToken":"rt5","source":{"type":"user","userId":"U123"},"message":{"type":"image","id":"m2","contentProvider":{"type":"line"}}}]}`)
			signature = signBody(testChannelSecret, body)
		})

		It("still acknowledges the delivery", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("replies with the generic fallback", func() {
			Expect(messenger.replies).To(HaveLen(1))
			Expect(messenger.replies[0].messages[0].(*linebot.TextMessage).Text).To(Equal(fallbackReply))
		})
	})

	When("one malformed event precedes a valid one", func() {
		BeforeEach(func() {
			scanner.response = "```json\nnot json\n```"
			messenger.content["m2"] = []byte("image-bytes")
			body = []byte(`{"events":[` +
				`{"type":"message","timestamp":1735732800000,"replyToken":"rt6","source":{"type":"user","userId":"U123"},"message":{"type":"image","id":"m2","contentProvider":{"type":"line"}}},` +
				`{"type":"message","timestamp":1735732800000,"replyToken":"rt7","source":{"type":"user","userId":"U456"},"message":{"type":"text","id":"m4","text":"hello"}}` +
				`]}`)
			signature = signBody(testChannelSecret, body)
		})

		It("processes the remaining events in the batch", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(messenger.replies).To(HaveLen(2))
			Expect(messenger.replies[0].messages[0].(*linebot.TextMessage).Text).To(Equal(fallbackReply))
			Expect(messenger.replies[1].token).To(Equal("rt7"))
		})
	})
})

var _ = Describe("healthz", func() {
	It("reports ok", func() {
		store := newMockStore()
		service := NewServiceWithOptions(store, &mockScanner{}, &mockCompleter{}, nil, false)
		server := NewServer(service, newFakeMessenger(), testChannelSecret)

		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		Expect(recorder.Code).To(Equal(http.StatusOK))
	})
})
