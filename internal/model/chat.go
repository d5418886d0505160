package model

// ChatMessagePayload is the row image the chat_messages trigger stores in the outbox.
type ChatMessagePayload struct {
	ID             Text             `json:"id"`
	BookingID      Text             `json:"bookingId"`
	SenderID       Text             `json:"senderId"`
	ReceiverID     Text             `json:"receiverId"`
	SenderName     Text             `json:"senderName"`
	ReceiverName   Text             `json:"receiverName"`
	MessageText    *Text            `json:"messageText"`
	TranslatedText Text             `json:"translatedText"`
	CreatedAt      Text             `json:"createdAt"`
	ReadAt         Text             `json:"readAt"`
	BookingData    *ChatBookingData `json:"bookingData"`
}

// ChatBookingData is the booking context the trigger attaches to a chat message.
type ChatBookingData struct {
	CustomerID    Text `json:"customerId"`
	DriverID      Text `json:"driverId"`
	CustomerName  Text `json:"customerName"`
	DriverName    Text `json:"driverName"`
	PickupAddress Text `json:"pickupAddress"`
	BookingTime   Text `json:"bookingTime"`
}
