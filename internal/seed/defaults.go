package seed

import "github.com/MrSnakeDoc/showcase/internal/domain"

// Defaults returns a fresh copy of the built-in list.
func Defaults() []domain.Item {
	return []domain.Item{
		{ID: 1, Name: "Blue Muji Pen 0.5", Image: "/products/muji_pen_1765821401462.png", Description: "Blue click muji pen 0.5"},
		{ID: 2, Name: "AirPods Pro 2", Image: "/products/airpods_pro_1765821415964.png", Description: "Apple AirPods Pro 2"},
		{ID: 3, Name: "MacBook Pro", Image: "/products/macbook_pro_1765821428417.png", Description: "MacBook Pro"},
		{ID: 4, Name: "Clipper Tea", Image: "https://placehold.co/800x800/png?text=Tea", Description: "Clipper Ginko Tea"},
		{ID: 5, Name: "Amazon Basics Hoodie", Image: "https://placehold.co/800x800/png?text=Hoodie", Description: "Burgundy zipped Amazon Basics hoodie"},
		{ID: 6, Name: "Blundstone Boots", Image: "https://placehold.co/800x800/png?text=Boots", Description: "Blundstone brown boots"},
		{ID: 7, Name: "Kindle Paperwhite", Image: "https://placehold.co/800x800/png?text=Kindle", Description: "Kindle Paperwhite"},
		{ID: 8, Name: "MagSafe Wallet", Image: "https://placehold.co/800x800/png?text=Wallet", Description: "MagSafe wallet"},
		{ID: 9, Name: "JBL Go 4", Image: "https://placehold.co/800x800/png?text=JBL", Description: "JBL Go 4 black"},
		{ID: 10, Name: "Swapfiets Bike", Image: "https://placehold.co/800x800/png?text=Bike", Description: "Swapfiets original bike yellow"},
	}
}
