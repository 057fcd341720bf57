package receipt

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("FirebaseStore", func() {
	var (
		ctx       context.Context
		apiServer *ghttp.Server
		store     *FirebaseStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		apiServer = ghttp.NewServer()
		var err error
		store, err = NewFirebaseStore(apiServer.URL(), "")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		apiServer.Close()
	})

	Describe("NewFirebaseStore", func() {
		It("requires a base URL", func() {
			_, err := NewFirebaseStore("", "")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Put", func() {
		It("PUTs the record under the keyed node", func() {
			apiServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("PUT", "/receipt_helper/U1/Receipts/123.json"),
				ghttp.VerifyJSON(`{"ReceiptID":"123","PurchaseStore":"Mart","PurchaseDate":"","PurchaseAddress":"","TotalAmount":"10"}`),
				ghttp.RespondWith(http.StatusOK, `{"ReceiptID":"123"}`),
			))

			rec := &Receipt{ReceiptID: "123", PurchaseStore: "Mart", TotalAmount: Amount("10")}
			Expect(store.Put(ctx, "receipt_helper/U1/Receipts", "123", rec)).To(Succeed())
			Expect(apiServer.ReceivedRequests()).To(HaveLen(1))
		})

		It("wraps API failures in a StoreError", func() {
			apiServer.AppendHandlers(
				ghttp.RespondWith(http.StatusUnauthorized, `{"error":"Permission denied"}`),
			)

			err := store.Put(ctx, "receipt_helper/U1/Receipts", "123", &Receipt{})
			var storeErr *StoreError
			Expect(errors.As(err, &storeErr)).To(BeTrue())
			Expect(storeErr.Op).To(Equal("put"))
		})
	})

	Describe("Get", func() {
		It("returns the record body", func() {
			apiServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/receipt_helper/U1/Receipts/123.json"),
				ghttp.RespondWith(http.StatusOK, `{"ReceiptID":"123"}`),
			))

			data, err := store.Get(ctx, "receipt_helper/U1/Receipts", "123")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(MatchJSON(`{"ReceiptID":"123"}`))
		})

		It("maps a null body to ErrNotFound", func() {
			apiServer.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, `null`),
			)

			_, err := store.Get(ctx, "receipt_helper/U1/Receipts", "123")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("GetAll", func() {
		It("returns the whole collection as a mapping", func() {
			apiServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/receipt_helper/U1.json"),
				ghttp.RespondWith(http.StatusOK, `{"Receipts":{"123":{"ReceiptID":"123"}},"Items":{"1231":{"ItemID":"1231"}}}`),
			))

			records, err := store.GetAll(ctx, "receipt_helper/U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveKey("Receipts"))
			Expect(records).To(HaveKey("Items"))
		})

		It("maps a null body to an empty mapping", func() {
			apiServer.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, `null`),
			)

			records, err := store.GetAll(ctx, "receipt_helper/U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("DELETEs the keyed node", func() {
			apiServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("DELETE", "/receipt_helper/U1/Receipts/123.json"),
				ghttp.RespondWith(http.StatusOK, `null`),
			))

			Expect(store.Delete(ctx, "receipt_helper/U1/Receipts", "123")).To(Succeed())
		})
	})

	Describe("DeleteAll", func() {
		It("DELETEs the whole collection node", func() {
			apiServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("DELETE", "/receipt_helper/U1.json"),
				ghttp.RespondWith(http.StatusOK, `null`),
			))

			Expect(store.DeleteAll(ctx, "receipt_helper/U1")).To(Succeed())
		})
	})

	When("an auth token is configured", func() {
		BeforeEach(func() {
			var err error
			store, err = NewFirebaseStore(apiServer.URL(), "secret-token")
			Expect(err).NotTo(HaveOccurred())
		})

		It("appends it to every request", func() {
			apiServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/receipt_helper/U1/Receipts/123.json", "auth=secret-token"),
				ghttp.RespondWith(http.StatusOK, `{"ReceiptID":"123"}`),
			))

			_, err := store.Get(ctx, "receipt_helper/U1/Receipts", "123")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
