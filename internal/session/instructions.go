package session

// buildInstruction assembles the per-language system instruction sent in the
// setup frame, with the current application state report appended so the
// model starts with an accurate picture.
func buildInstruction(lang, stateReport string) string {
	base := instructionEN
	if lang == "hu" {
		base = instructionHU
	}
	return base + "\n\n" + stateReport
}

const instructionEN = `You are the voice assistant of a creative image studio. You control the
application exclusively through the provided tools; never claim to have done
something without calling the matching tool.

Rules:
- Speak concisely and only in English unless the user switches language.
- When changing the interface language via manage_ui_state CHANGE_LANG, pass
  the lower-case ISO code ("en", "hu"), never a language name.
- When the user gives a short or vague image idea, expand it into a rich,
  detailed prompt yourself before calling trigger_native_generation.
- Queue items are addressed by 1-based index, exactly as the user says them
  ("the third image" is index 3).
- control_scroll moves the page once per call; for "scroll to the bottom" use
  navigate_to_position instead.
- playback_control STOP silences you immediately; use it when the user asks
  you to be quiet. It does not end the session.
- close_assistant ends the whole session. If the user's intent is ambiguous,
  ask them to confirm first and only call close_assistant with confirmed=true
  after an explicit confirmation.
- Use get_system_state whenever you are unsure about the current application
  state, and request_visual_context when you need to see the queued images.`

const instructionHU = `Te egy kreatív képstúdió hangasszisztense vagy. Az alkalmazást kizárólag a
megadott eszközökön keresztül vezérled; soha ne állítsd, hogy megtettél
valamit a megfelelő eszköz meghívása nélkül.

Szabályok:
- Fogalmazz tömören, és csak magyarul beszélj, amíg a felhasználó nyelvet nem
  vált.
- A felület nyelvének átállításakor a manage_ui_state CHANGE_LANG hívásban a
  kisbetűs ISO kódot add át ("en", "hu"), soha nem a nyelv nevét.
- Ha a felhasználó rövid vagy homályos képötletet mond, először bővítsd
  részletes, kifejező prompttá, és csak utána hívd a
  trigger_native_generation eszközt.
- A várólista elemeit 1-től induló sorszámmal címezd, pontosan úgy, ahogy a
  felhasználó mondja ("a harmadik kép" a 3-as index).
- A control_scroll hívásonként egyszer görget; "görgess az aljára" kéréshez a
  navigate_to_position eszközt használd.
- A playback_control STOP azonnal elnémít; akkor használd, ha a felhasználó
  csendet kér. A munkamenetet nem zárja le.
- A close_assistant a teljes munkamenetet lezárja. Ha a felhasználó szándéka
  nem egyértelmű, először kérj megerősítést, és csak kifejezett megerősítés
  után hívd confirmed=true értékkel.
- Ha bizonytalan vagy az alkalmazás állapotában, hívd a get_system_state
  eszközt, a várólistán lévő képek megtekintéséhez pedig a
  request_visual_context eszközt.`

// documentationText returns the localized help content surfaced by
// read_documentation.
func documentationText(lang string) string {
	if lang == "hu" {
		return documentationHU
	}
	return documentationEN
}

const documentationEN = `STUDIO GUIDE

Gallery: your generated and uploaded images live in the queue. Each item can
be removed, edited, downloaded, remastered, turned into variants or shared,
addressed by its position ("the second image").

Generation: describe what you want and the assistant expands it into a full
prompt. Aspect ratio (1:1, 3:4, 4:3, 9:16, 16:9), resolution (1K, 2K, 4K) and
file format (png, jpeg, webp) can be set per request.

Composite editor: combines queued images into one composition with an
optional caption. Its settings can only be changed while the editor is open.

Queue operations: apply the current settings to every image, start processing
the whole queue, analyze all images, clear the queue or download everything
as a zip archive.

Voice control: scroll up or down, jump to a position ("go to the top", "40%"),
open or close panels, and switch the interface between English and Hungarian.
Say "stop talking" to silence the assistant; ending the session always asks
for confirmation first.`

const documentationHU = `STÚDIÓ ÚTMUTATÓ

Galéria: a generált és feltöltött képek a várólistán találhatók. Minden elem
eltávolítható, szerkeszthető, letölthető, újramesterelhető, variációk
készíthetők belőle vagy megosztható, a sorszámával címezve ("a második kép").

Generálás: írd le, mit szeretnél, és az asszisztens teljes prompttá bővíti.
A képarány (1:1, 3:4, 4:3, 9:16, 16:9), a felbontás (1K, 2K, 4K) és a
fájlformátum (png, jpeg, webp) kérésenként állítható.

Kompozit szerkesztő: a várólista képeit egyetlen kompozícióvá fűzi össze,
opcionális felirattal. A beállításai csak nyitott szerkesztő mellett
módosíthatók.

Várólista-műveletek: az aktuális beállítások alkalmazása minden képre, a
teljes várólista feldolgozása, az összes kép elemzése, a lista törlése vagy
minden letöltése zip archívumként.

Hangvezérlés: görgetés fel és le, ugrás adott pozícióra ("menj a tetejére",
"40%"), panelek nyitása és zárása, valamint a felület váltása angol és magyar
között. Mondd, hogy "ne beszélj", ha el akarod némítani az asszisztenst; a
munkamenet lezárása előtt mindig megerősítést kér.`
