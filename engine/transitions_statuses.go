package engine

import (
	"github.com/gebv/airtime"
)

var checkoutStatusTransitionChart = CheckoutStatusTransitionChart{
	airtime.NEW_CS: {airtime.PRODUCTS_LISTED_CS},
	airtime.PRODUCTS_LISTED_CS: {
		airtime.PRODUCT_SELECTED_CS,
		airtime.AWAITING_PAYMENT_CS,
		airtime.PURCHASED_CS,
	},
	airtime.PRODUCT_SELECTED_CS: {
		airtime.PRODUCT_SELECTED_CS,
		airtime.AWAITING_PAYMENT_CS,
		airtime.PURCHASED_CS,
	},
	airtime.AWAITING_PAYMENT_CS: {
		airtime.AWAITING_PAYMENT_CS,
		airtime.PAYMENT_EXECUTED_CS,
		airtime.PAYMENT_FAILED_CS,
		airtime.CANCELLED_CS,
	},
	airtime.PAYMENT_EXECUTED_CS: {
		airtime.PURCHASED_CS,
		airtime.PURCHASE_FAILED_AFTER_PAYMENT_CS,
	},
}

type CheckoutStatusTransitionChart map[airtime.CheckoutStatus][]airtime.CheckoutStatus

func (s CheckoutStatusTransitionChart) Allowed(from, to airtime.CheckoutStatus) bool {
	list, exists := s[from]
	if !exists {
		return false
	}
	for _, status := range list {
		if status.Match(to) {
			return true
		}
	}
	return false
}
