package model

// BookingPayload is the row image the bookings trigger stores in the outbox.
// Numeric columns keep their JSON literal so the integer/double distinction
// survives into the document. Columns decode leniently: a value of the wrong
// JSON type is treated as absent instead of failing the event.
type BookingPayload struct {
	ID         Text `json:"id"`
	CustomerID Text `json:"customerId"`
	DriverID   Text `json:"driverId"`
	Status     Text `json:"status"`

	CustomerName       Text   `json:"customerName"`
	CustomerPhone      Text   `json:"customerPhone"`
	DriverName         Text   `json:"driverName"`
	DriverPhone        Text   `json:"driverPhone"`
	DriverVehiclePlate Text   `json:"driverVehiclePlate"`
	DriverVehicleModel Text   `json:"driverVehicleModel"`
	DriverRating       Number `json:"driverRating"`

	PickupAddress   Text    `json:"pickupAddress"`
	PickupLocation  *LatLng `json:"pickupLocation"`
	Destination     Text    `json:"destination"`
	DropoffLocation *LatLng `json:"dropoffLocation"`

	StartDate       Text `json:"startDate"`
	StartTime       Text `json:"startTime"`
	CreatedAt       Text `json:"createdAt"`
	ActualStartTime Text `json:"actualStartTime"`
	ActualEndTime   Text `json:"actualEndTime"`

	PassengerCount      Number `json:"passengerCount"`
	LuggageCount        Number `json:"luggageCount"`
	SpecialRequirements Text   `json:"specialRequirements"`

	TourPackageID   Text `json:"tourPackageId"`
	TourPackageName Text `json:"tourPackageName"`

	PromoCode            Text   `json:"promoCode"`
	InfluencerID         Text   `json:"influencerId"`
	InfluencerCommission Number `json:"influencerCommission"`
	OriginalPrice        Number `json:"originalPrice"`
	DiscountAmount       Number `json:"discountAmount"`
	FinalPrice           Number `json:"finalPrice"`
	TaxID                Text   `json:"taxId"`

	TotalAmount   Number `json:"totalAmount"`
	DepositAmount Number `json:"depositAmount"`
	OvertimeFee   Number `json:"overtimeFee"`
	TipAmount     Number `json:"tipAmount"`
	PlatformFee   Number `json:"platformFee"`
	DriverEarning Number `json:"driverEarning"`
}
