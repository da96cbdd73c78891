package bot

import (
	"fmt"
	"strings"
)

// Supported interface languages. Anything else normalizes to the default.
const (
	LangUz = "uz"
	LangRu = "ru"
	LangEn = "en"
)

// DefaultLanguage is used before a chat has picked one.
const DefaultLanguage = LangRu

// NormalizeLanguage collapses arbitrary stored values onto the closed set.
func NormalizeLanguage(raw string) string {
	switch raw {
	case LangUz, LangRu, LangEn:
		return raw
	default:
		return DefaultLanguage
	}
}

// bundle holds every user-facing string for one language.
type bundle struct {
	ChooseLanguage   string
	ShareContact     string
	ShareContactBtn  string
	ContactNotOwn    string
	PatientNotFound  string
	Welcome          string
	MenuSchedule     string
	MenuWriteDoctor  string
	MenuPrompt       string
	ScheduleHeader   string
	ScheduleEmpty    string
	WriteDoctorHint  string
	MessageSaved     string
	MediaRejected    string
	NotLinked        string
	ReminderTemplate string
}

var bundles = map[string]bundle{
	LangUz: {
		ChooseLanguage:   "Tilni tanlang / Выберите язык / Choose a language",
		ShareContact:     "Telefon raqamingizni yuboring. Quyidagi tugmani bosing.",
		ShareContactBtn:  "Raqamni yuborish",
		ContactNotOwn:    "Iltimos, faqat o'zingizning raqamingizni yuboring.",
		PatientNotFound:  "Raqamingiz bo'yicha bemor topilmadi. Klinikaga murojaat qiling.",
		Welcome:          "Assalomu alaykum, %s! Siz ro'yxatdan o'tdingiz.",
		MenuSchedule:     "Jadvalni ko'rish",
		MenuWriteDoctor:  "Shifokorga yozish",
		MenuPrompt:       "Kerakli bo'limni tanlang:",
		ScheduleHeader:   "Rejalashtirilgan muolajalar:",
		ScheduleEmpty:    "Yaqin kunlarda rejalashtirilgan muolajalar yo'q.",
		WriteDoctorHint:  "Xabaringizni yozing, shifokorga yetkazamiz.",
		MessageSaved:     "Xabaringiz shifokorga yuborildi.",
		MediaRejected:    "Rasm va fayllarni bu yerda qabul qilmaymiz. Shifokor bilan bog'laning: %s",
		NotLinked:        "Avval ro'yxatdan o'ting: /start",
		ReminderTemplate: "Eslatma: ertaga (%s) muolajangiz bor. %s",
	},
	LangRu: {
		ChooseLanguage:   "Tilni tanlang / Выберите язык / Choose a language",
		ShareContact:     "Отправьте свой номер телефона. Нажмите кнопку ниже.",
		ShareContactBtn:  "Отправить номер",
		ContactNotOwn:    "Пожалуйста, отправьте только свой собственный номер.",
		PatientNotFound:  "Пациент с таким номером не найден. Обратитесь в клинику.",
		Welcome:          "Здравствуйте, %s! Вы зарегистрированы.",
		MenuSchedule:     "Моё расписание",
		MenuWriteDoctor:  "Написать врачу",
		MenuPrompt:       "Выберите нужный раздел:",
		ScheduleHeader:   "Запланированные процедуры:",
		ScheduleEmpty:    "Ближайших запланированных процедур нет.",
		WriteDoctorHint:  "Напишите сообщение, мы передадим его врачу.",
		MessageSaved:     "Сообщение передано врачу.",
		MediaRejected:    "Фото и файлы здесь не принимаются. Свяжитесь с врачом: %s",
		NotLinked:        "Сначала зарегистрируйтесь: /start",
		ReminderTemplate: "Напоминание: завтра (%s) у вас процедура. %s",
	},
	LangEn: {
		ChooseLanguage:   "Tilni tanlang / Выберите язык / Choose a language",
		ShareContact:     "Share your phone number using the button below.",
		ShareContactBtn:  "Share my number",
		ContactNotOwn:    "Please share your own phone number only.",
		PatientNotFound:  "No patient matches this number. Please contact the clinic.",
		Welcome:          "Hello, %s! You are all set.",
		MenuSchedule:     "My schedule",
		MenuWriteDoctor:  "Write to my doctor",
		MenuPrompt:       "Choose an option:",
		ScheduleHeader:   "Upcoming treatments:",
		ScheduleEmpty:    "No upcoming treatments scheduled.",
		WriteDoctorHint:  "Type your message and we will pass it to your doctor.",
		MessageSaved:     "Your message was forwarded to the doctor.",
		MediaRejected:    "Photos and files are not accepted here. Contact your doctor: %s",
		NotLinked:        "Please register first: /start",
		ReminderTemplate: "Reminder: you have a treatment tomorrow (%s). %s",
	},
}

// messages returns the bundle for the language, normalized.
func messages(lang string) bundle {
	return bundles[NormalizeLanguage(lang)]
}

// ReminderMessage renders the day-ahead injection reminder in the
// patient's language.
func ReminderMessage(lang, day, drug string) string {
	b := messages(lang)
	return strings.TrimSpace(fmt.Sprintf(b.ReminderTemplate, day, drug))
}
