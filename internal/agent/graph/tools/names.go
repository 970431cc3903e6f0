package tools

// Tool names exposed to the model.
const (
	ToolGetUser           = "getUser"
	ToolCreateUser        = "createUser"
	ToolUpdateUser        = "updateUser"
	ToolDeleteUser        = "deleteUser"
	ToolCreateRestaurant  = "createRestaurant"
	ToolGetRestaurant     = "getRestaurant"
	ToolListDishes        = "listDishes"
	ToolInitiateOrder     = "initiateOrder"
	ToolUpdateTempOrder   = "updateTempOrder"
	ToolConfirmOrder      = "confirmOrder"
	ToolGetOrder          = "getOrder"
	ToolGetOrdersByUser   = "getOrdersByUser"
	ToolUpdateOrderStatus = "updateOrderStatus"
	ToolDeleteOrder       = "deleteOrder"
	ToolGeneratePaymentQR = "generatePaymentQR"
)
